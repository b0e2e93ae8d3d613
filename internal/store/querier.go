package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

// Querier is the persistence surface. All methods run against whatever
// connection or transaction backs the Queries value they are called on.
type Querier interface {
	CreateAccount(ctx context.Context, currency string) (*domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdateBalanceHint(ctx context.Context, id int64, hint decimal.Decimal) error
	SetCustomerRef(ctx context.Context, id int64, ref string) error
	SetPayeeRef(ctx context.Context, id int64, ref string) error
	SetPayoutCapability(ctx context.Context, id int64, enabled bool) error

	GetSettings(ctx context.Context) (*domain.Settings, error)
	UpsertSettings(ctx context.Context, s *domain.Settings) error

	AppendEntry(ctx context.Context, e *domain.LedgerEntry) error
	MarkEntryTerminal(ctx context.Context, id uuid.UUID, status domain.EntryStatus, externalRef *string) error
	SetEntryExternalRef(ctx context.Context, id uuid.UUID, ref string) error
	SumForAccount(ctx context.Context, accountID int64, currency string) (decimal.Decimal, error)
	EntriesForAccount(ctx context.Context, accountID int64, limit int32) ([]domain.LedgerEntry, error)

	CreateTopUpIntent(ctx context.Context, in *domain.TopUpIntent) error
	GetTopUpIntentByRef(ctx context.Context, ref string, forUpdate bool) (*domain.TopUpIntent, error)
	SettleTopUpIntent(ctx context.Context, id int64, status domain.IntentStatus, entryID *uuid.UUID) error

	CreatePayoutRequest(ctx context.Context, pr *domain.PayoutRequest) error
	GetPayoutRequest(ctx context.Context, id int64) (*domain.PayoutRequest, error)
	GetPayoutRequestByRef(ctx context.Context, ref string, forUpdate bool) (*domain.PayoutRequest, error)
	UpdatePayoutStatus(ctx context.Context, id int64, status domain.PayoutStatus, externalRef, failureReason *string) error
	LockedPayoutTotal(ctx context.Context, accountID int64) (decimal.Decimal, error)

	CreateTontine(ctx context.Context, t *domain.Tontine) error
	GetTontine(ctx context.Context, id int64) (*domain.Tontine, error)
	AddTontineMember(ctx context.Context, m *domain.TontineMember) error
	GetTontineMember(ctx context.Context, tontineID, accountID int64) (*domain.TontineMember, error)
	GetTontineMemberByID(ctx context.Context, memberID int64) (*domain.TontineMember, error)
	CountTontineMembers(ctx context.Context, tontineID int64) (int, error)
	CreateContribution(ctx context.Context, c *domain.TontineContribution) error
	GetContributionBySession(ctx context.Context, sessionRef string) (*domain.TontineContribution, error)
	CreateTontinePayout(ctx context.Context, p *domain.TontinePayout) error
	UpdatePoolTotal(ctx context.Context, tontineID int64, total decimal.Decimal) error
}

// Store adds the atomic units of work on top of the plain queries.
// WithAccountLock opens a transaction and acquires row locks on the given
// accounts in ascending id order, so every read-then-write against a balance
// is serialized per account and deadlock-free across accounts.
type Store interface {
	Querier
	WithTx(ctx context.Context, fn func(Querier) error) error
	WithAccountLock(ctx context.Context, accountIDs []int64, fn func(Querier) error) error
}

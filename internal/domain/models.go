package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the per-user wallet. BalanceHint is a display-only cache
// refreshed from the ledger; the ledger aggregate is the only authority.
type Account struct {
	ID             int64           `json:"id"`
	Currency       string          `json:"currency"`
	BalanceHint    decimal.Decimal `json:"balance_hint"`
	CustomerRef    *string         `json:"customer_ref,omitempty"`
	PayeeRef       *string         `json:"payee_ref,omitempty"`
	PayoutsEnabled bool            `json:"payouts_enabled"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindWalletTopup         EntryKind = "wallet_topup"
	KindWalletTransfer      EntryKind = "wallet_transfer"
	KindWalletPayout        EntryKind = "wallet_payout"
	KindTontineContribution EntryKind = "tontine_contribution"
	KindFeePayout           EntryKind = "fee_payout"
	KindDeposit             EntryKind = "deposit"
	KindOther               EntryKind = "other"
)

// EntryStatus is the lifecycle of a ledger entry. Completed and failed are
// terminal; a terminal entry is immutable.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// LedgerEntry is one immutable monetary event. For any account, the sum of
// completed credits minus completed debits and fees is its balance.
// At least one of SenderID/RecipientID is set; intra-system credits such as
// a processor top-up carry only a recipient.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	SenderID    *int64          `json:"sender_id,omitempty"`
	RecipientID *int64          `json:"recipient_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Currency    string          `json:"currency"`
	Kind        EntryKind       `json:"kind"`
	Status      EntryStatus     `json:"status"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IntentStatus is the lifecycle of a top-up intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
)

// TopUpIntent tracks one attempt to add funds through the external processor.
// Only the webhook processor moves it to a terminal status; no ledger entry
// exists until confirmation.
type TopUpIntent struct {
	ID               int64           `json:"id"`
	AccountID        int64           `json:"account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	ExternalRef      string          `json:"external_ref"`
	PaymentMethodRef string          `json:"payment_method_ref"`
	Status           IntentStatus    `json:"status"`
	LedgerEntryID    *uuid.UUID      `json:"ledger_entry_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PayoutStatus is the lifecycle of a payout request.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// PayoutRequest is one withdrawal. Creating it takes an immediate reservation
// debit (ReservationEntryID) so concurrent requests see the reduced balance.
type PayoutRequest struct {
	ID                 int64           `json:"id"`
	AccountID          int64           `json:"account_id"`
	Amount             decimal.Decimal `json:"amount"`
	Fee                decimal.Decimal `json:"fee"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	Currency           string          `json:"currency"`
	Status             PayoutStatus    `json:"status"`
	ExternalRef        *string         `json:"external_ref,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	ReservationEntryID uuid.UUID       `json:"reservation_entry_id"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Tontine is a rotating group-savings pool. The pool holds its own account so
// contributions and payouts flow through the same ledger as everything else;
// PoolTotal mirrors that account's derived balance for display.
type Tontine struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	PoolAccountID      int64           `json:"pool_account_id"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	Currency           string          `json:"currency"`
	PoolTotal          decimal.Decimal `json:"pool_total"`
	CreatedAt          time.Time       `json:"created_at"`
}

// TontineMember links an account to a tontine with its round position.
type TontineMember struct {
	ID        int64     `json:"id"`
	TontineID int64     `json:"tontine_id"`
	AccountID int64     `json:"account_id"`
	Position  int       `json:"position"`
	JoinedAt  time.Time `json:"joined_at"`
}

// TontineContribution is a ledger-linked payment into the pool. SessionRef is
// the checkout session id when the contribution was paid by card; it is the
// idempotency key for webhook-driven contributions.
type TontineContribution struct {
	ID            int64           `json:"id"`
	TontineID     int64           `json:"tontine_id"`
	MemberID      int64           `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	Round         int             `json:"round"`
	SessionRef    *string         `json:"session_ref,omitempty"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TontinePayout is a ledger-linked disbursement of the pool to one member.
type TontinePayout struct {
	ID            int64           `json:"id"`
	TontineID     int64           `json:"tontine_id"`
	MemberID      int64           `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Settings is the system-wide fee schedule, stored as a single row.
type Settings struct {
	TransferFeePercent decimal.Decimal `json:"transfer_fee_percent"`
	PayoutFlatFee      decimal.Decimal `json:"payout_flat_fee"`
	Currency           string          `json:"currency"`
}

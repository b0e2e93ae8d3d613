package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/store"
	"github.com/susupay/walletops/pkg/logger"
)

// TontineService coordinates group-savings rounds over the shared ledger.
// Each tontine owns a pool account, so contributions and payouts are ordinary
// ledger movements and the pool total is a derived balance like any other.
type TontineService struct {
	store store.Store
	proc  processor.Client
	snap  *cache.BalanceSnapshot
}

func NewTontineService(st store.Store, proc processor.Client, snap *cache.BalanceSnapshot) *TontineService {
	return &TontineService{store: st, proc: proc, snap: snap}
}

// MakeContribution pays one member's round contribution into the pool from
// their wallet balance.
func (s *TontineService) MakeContribution(ctx context.Context, tontineID, accountID int64, amount decimal.Decimal) (*domain.TontineContribution, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	tontine, err := s.store.GetTontine(ctx, tontineID)
	if err != nil {
		return nil, err
	}

	var contribution *domain.TontineContribution
	err = s.store.WithAccountLock(ctx, []int64{accountID, tontine.PoolAccountID}, func(q store.Querier) error {
		member, err := q.GetTontineMember(ctx, tontineID, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrMemberNotFound) {
				return domain.ErrNotAMember
			}
			return err
		}

		balance, err := q.SumForAccount(ctx, accountID, "")
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		entry := &domain.LedgerEntry{
			SenderID:    &accountID,
			RecipientID: &tontine.PoolAccountID,
			Amount:      amount,
			Currency:    tontine.Currency,
			Kind:        domain.KindTontineContribution,
			Status:      domain.EntryCompleted,
			Description: "tontine contribution",
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			return err
		}

		contribution = &domain.TontineContribution{
			TontineID:     tontineID,
			MemberID:      member.ID,
			Amount:        amount,
			Round:         1,
			LedgerEntryID: entry.ID,
		}
		if err := q.CreateContribution(ctx, contribution); err != nil {
			return err
		}

		if err := refreshPoolTotal(ctx, q, tontine); err != nil {
			return err
		}
		return refreshBalanceHints(ctx, q, accountID, tontine.PoolAccountID)
	})
	if err != nil {
		return nil, err
	}

	s.snap.Invalidate(ctx, accountID, tontine.PoolAccountID)
	return contribution, nil
}

// RecordCheckoutContribution settles a card-paid contribution reported by a
// checkout_completed webhook. The session reference is the idempotency key:
// a duplicate delivery returns the first contribution unchanged.
func (s *TontineService) RecordCheckoutContribution(ctx context.Context, sessionRef string, tontineID, accountID int64, amount decimal.Decimal) (*domain.TontineContribution, error) {
	tontine, err := s.store.GetTontine(ctx, tontineID)
	if err != nil {
		return nil, err
	}

	var contribution *domain.TontineContribution
	err = s.store.WithAccountLock(ctx, []int64{tontine.PoolAccountID}, func(q store.Querier) error {
		existing, err := q.GetContributionBySession(ctx, sessionRef)
		if err != nil {
			return err
		}
		if existing != nil {
			contribution = existing
			return nil
		}

		member, err := q.GetTontineMember(ctx, tontineID, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrMemberNotFound) {
				return domain.ErrNotAMember
			}
			return err
		}

		// Card funds arrive from outside the system: an intra-system credit
		// to the pool with only a recipient.
		ref := sessionRef
		entry := &domain.LedgerEntry{
			RecipientID: &tontine.PoolAccountID,
			Amount:      amount,
			Currency:    tontine.Currency,
			Kind:        domain.KindTontineContribution,
			Status:      domain.EntryCompleted,
			ExternalRef: &ref,
			Description: "tontine contribution (checkout)",
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			return err
		}

		contribution = &domain.TontineContribution{
			TontineID:     tontineID,
			MemberID:      member.ID,
			Amount:        amount,
			Round:         1,
			SessionRef:    &ref,
			LedgerEntryID: entry.ID,
		}
		if err := q.CreateContribution(ctx, contribution); err != nil {
			return err
		}

		if err := refreshPoolTotal(ctx, q, tontine); err != nil {
			return err
		}
		return refreshBalanceHints(ctx, q, tontine.PoolAccountID)
	})
	if err != nil {
		return nil, err
	}

	s.snap.Invalidate(ctx, tontine.PoolAccountID)
	return contribution, nil
}

// StartCheckout opens a hosted checkout session for one round contribution,
// tagged with the tontine and account so the webhook can settle it.
func (s *TontineService) StartCheckout(ctx context.Context, tontineID, accountID int64) (*processor.CheckoutSession, error) {
	tontine, err := s.store.GetTontine(ctx, tontineID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetTontineMember(ctx, tontineID, accountID); err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, domain.ErrNotAMember
		}
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	customerRef, err := ensureCustomerRef(ctx, s.store, s.proc, account)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"tontine_id": formatID(tontineID),
		"account_id": formatID(accountID),
	}
	return s.proc.CreateCheckoutSession(ctx, customerRef, tontine.ContributionAmount, tontine.Currency, metadata)
}

// PayoutMember disburses one full round to a member: the fixed contribution
// amount times the member count. The pool's derived balance must cover the
// disbursement; a round paid ahead of its contributions is rejected rather
// than driving the pool negative.
func (s *TontineService) PayoutMember(ctx context.Context, tontineID, memberID int64) (*domain.TontinePayout, error) {
	member, err := s.store.GetTontineMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.TontineID != tontineID {
		return nil, domain.ErrNotAMember
	}

	tontine, err := s.store.GetTontine(ctx, tontineID)
	if err != nil {
		return nil, err
	}

	var payout *domain.TontinePayout
	err = s.store.WithAccountLock(ctx, []int64{tontine.PoolAccountID, member.AccountID}, func(q store.Querier) error {
		memberCount, err := q.CountTontineMembers(ctx, tontineID)
		if err != nil {
			return err
		}
		payoutAmount := tontine.ContributionAmount.Mul(decimal.NewFromInt(int64(memberCount)))

		poolBalance, err := q.SumForAccount(ctx, tontine.PoolAccountID, "")
		if err != nil {
			return err
		}
		if poolBalance.LessThan(payoutAmount) {
			logger.Warnf("tontine %d: pool balance %s does not cover round payout %s",
				tontineID, poolBalance, payoutAmount)
			return domain.ErrInsufficientFunds
		}

		entry := &domain.LedgerEntry{
			SenderID:    &tontine.PoolAccountID,
			RecipientID: &member.AccountID,
			Amount:      payoutAmount,
			Currency:    tontine.Currency,
			Kind:        domain.KindWalletTransfer,
			Status:      domain.EntryCompleted,
			Description: "tontine round payout",
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			return err
		}

		payout = &domain.TontinePayout{
			TontineID:     tontineID,
			MemberID:      memberID,
			Amount:        payoutAmount,
			Status:        "paid",
			LedgerEntryID: entry.ID,
		}
		if err := q.CreateTontinePayout(ctx, payout); err != nil {
			return err
		}

		if err := refreshPoolTotal(ctx, q, tontine); err != nil {
			return err
		}
		return refreshBalanceHints(ctx, q, member.AccountID, tontine.PoolAccountID)
	})
	if err != nil {
		return nil, err
	}

	s.snap.Invalidate(ctx, member.AccountID, tontine.PoolAccountID)
	return payout, nil
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// refreshPoolTotal mirrors the pool account's derived balance onto the
// tontine row for display.
func refreshPoolTotal(ctx context.Context, q store.Querier, tontine *domain.Tontine) error {
	total, err := q.SumForAccount(ctx, tontine.PoolAccountID, "")
	if err != nil {
		return err
	}
	return q.UpdatePoolTotal(ctx, tontine.ID, total)
}

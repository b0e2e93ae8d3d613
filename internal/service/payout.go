package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/store"
	"github.com/susupay/walletops/pkg/logger"
)

var payoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_payouts_total",
	Help: "Payout requests by final outcome",
}, []string{"outcome"})

// PayoutService reserves balance, calls the external payout capability, and
// resolves each request to completed or failed with a compensating reversal.
type PayoutService struct {
	store store.Store
	proc  processor.Client
	snap  *cache.BalanceSnapshot
}

func NewPayoutService(st store.Store, proc processor.Client, snap *cache.BalanceSnapshot) *PayoutService {
	return &PayoutService{store: st, proc: proc, snap: snap}
}

// RequestPayout reserves amount against the account's derived balance and
// hands the net amount to the processor. The reservation is an immediate
// completed debit inside the same locked transaction as the balance check,
// so the ledger itself is the lock surface against concurrent spenders.
//
// When the external call fails synchronously the request is marked failed
// and the full amount is credited back; the returned error wraps the
// processor failure while the returned request carries the failed state.
func (s *PayoutService) RequestPayout(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.PayoutRequest, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.PayoutsEnabled || account.PayeeRef == nil || *account.PayeeRef == "" {
		return nil, domain.ErrPayoutsNotEnabled
	}

	var request *domain.PayoutRequest
	err = s.store.WithAccountLock(ctx, []int64{accountID}, func(q store.Querier) error {
		settings, err := q.GetSettings(ctx)
		if err != nil {
			return err
		}

		locked, err := q.LockedPayoutTotal(ctx, accountID)
		if err != nil {
			return err
		}

		balance, err := q.SumForAccount(ctx, accountID, "")
		if err != nil {
			return err
		}
		if balance.Sub(locked).LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		fee := settings.PayoutFlatFee
		netAmount := amount.Sub(fee)
		if !netAmount.IsPositive() {
			return domain.ErrAmountTooSmall
		}

		// Reservation debit: net plus fee reduces the balance by exactly
		// the requested amount.
		entry := &domain.LedgerEntry{
			SenderID:    &accountID,
			Amount:      netAmount,
			Fee:         fee,
			Currency:    account.Currency,
			Kind:        domain.KindWalletPayout,
			Status:      domain.EntryCompleted,
			Description: "payout reservation",
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			return err
		}

		request = &domain.PayoutRequest{
			AccountID:          accountID,
			Amount:             amount,
			Fee:                fee,
			NetAmount:          netAmount,
			Currency:           account.Currency,
			Status:             domain.PayoutPending,
			ReservationEntryID: entry.ID,
		}
		if err := q.CreatePayoutRequest(ctx, request); err != nil {
			return err
		}

		return refreshBalanceHints(ctx, q, accountID)
	})
	if err != nil {
		return nil, err
	}
	s.snap.Invalidate(ctx, accountID)

	if err := s.store.UpdatePayoutStatus(ctx, request.ID, domain.PayoutProcessing, nil, nil); err != nil {
		return nil, err
	}
	request.Status = domain.PayoutProcessing

	payout, err := s.proc.CreatePayout(ctx, *account.PayeeRef, request.NetAmount, request.Currency)
	if err != nil {
		procErr := err
		var wrapped *domain.ExternalProcessorError
		if !errors.As(err, &wrapped) {
			procErr = &domain.ExternalProcessorError{Op: "payout", Err: err}
		}
		if failErr := s.failPayout(ctx, accountID, request.ID, procErr.Error(), nil); failErr != nil {
			logger.Errorf("payout %d: reversal after processor failure also failed: %v", request.ID, failErr)
			return nil, failErr
		}
		request.Status = domain.PayoutFailed
		payoutsTotal.WithLabelValues("failed").Inc()
		return request, procErr
	}

	err = s.store.WithTx(ctx, func(q store.Querier) error {
		if err := q.UpdatePayoutStatus(ctx, request.ID, domain.PayoutCompleted, &payout.Ref, nil); err != nil {
			return err
		}
		// The finalized reservation entry is the audit record; stamping the
		// provider reference on it makes retried payout webhooks no-ops.
		return q.SetEntryExternalRef(ctx, request.ReservationEntryID, payout.Ref)
	})
	if err != nil {
		return nil, err
	}

	request.Status = domain.PayoutCompleted
	request.ExternalRef = &payout.Ref
	payoutsTotal.WithLabelValues("completed").Inc()
	return request, nil
}

// MarkPaid settles a payout confirmed asynchronously by the provider.
// Unknown references and already-terminal requests are idempotent no-ops.
func (s *PayoutService) MarkPaid(ctx context.Context, externalRef string) error {
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		pr, err := q.GetPayoutRequestByRef(ctx, externalRef, true)
		if err != nil {
			return err
		}
		if pr.Status == domain.PayoutCompleted || pr.Status == domain.PayoutFailed {
			return nil
		}
		if err := q.UpdatePayoutStatus(ctx, pr.ID, domain.PayoutCompleted, nil, nil); err != nil {
			return err
		}
		payoutsTotal.WithLabelValues("completed").Inc()
		return nil
	})
	if errors.Is(err, domain.ErrPayoutNotFound) {
		logger.Warnf("payout_paid for unknown reference %s, ignoring", externalRef)
		return nil
	}
	return err
}

// MarkFailed settles a payout the provider rejected asynchronously, crediting
// the reserved amount back in full.
func (s *PayoutService) MarkFailed(ctx context.Context, externalRef, reason string) error {
	pr, err := s.store.GetPayoutRequestByRef(ctx, externalRef, false)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutNotFound) {
			logger.Warnf("payout_failed for unknown reference %s, ignoring", externalRef)
			return nil
		}
		return err
	}

	reversalRef := "rev-" + externalRef
	if err := s.failPayout(ctx, pr.AccountID, pr.ID, reason, &reversalRef); err != nil {
		return err
	}
	payoutsTotal.WithLabelValues("failed").Inc()
	return nil
}

// failPayout marks the request failed and reverses the reservation by
// crediting back the originally debited gross amount. The account lock
// serializes concurrent deliveries; the status guard plus the reversal
// entry's external reference make a second call a no-op.
func (s *PayoutService) failPayout(ctx context.Context, accountID, requestID int64, reason string, reversalRef *string) error {
	err := s.store.WithAccountLock(ctx, []int64{accountID}, func(q store.Querier) error {
		pr, err := q.GetPayoutRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if pr.Status == domain.PayoutCompleted || pr.Status == domain.PayoutFailed {
			return nil
		}

		if err := q.UpdatePayoutStatus(ctx, pr.ID, domain.PayoutFailed, nil, &reason); err != nil {
			return err
		}

		// Full reversal of the gross amount, not net of fee: a payout that
		// never left the building must not reduce the balance permanently.
		reversal := &domain.LedgerEntry{
			RecipientID: &pr.AccountID,
			Amount:      pr.Amount,
			Currency:    pr.Currency,
			Kind:        domain.KindOther,
			Status:      domain.EntryCompleted,
			ExternalRef: reversalRef,
			Description: "payout reservation reversal",
		}
		if err := q.AppendEntry(ctx, reversal); err != nil {
			if errors.Is(err, domain.ErrDuplicateReference) {
				return nil
			}
			return err
		}

		return refreshBalanceHints(ctx, q, pr.AccountID)
	})
	if err != nil {
		return err
	}

	s.snap.Invalidate(ctx, accountID)
	return nil
}

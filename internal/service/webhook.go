package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/store"
	"github.com/susupay/walletops/pkg/logger"
)

var webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_webhook_events_total",
	Help: "Processed webhook events by kind and outcome",
}, []string{"kind", "outcome"})

// WebhookService is the single entry point for asynchronous provider
// notifications. Delivery is at-least-once; every branch below must be safe
// to run twice for the same event.
type WebhookService struct {
	verifier *processor.Verifier
	store    store.Store
	snap     *cache.BalanceSnapshot
	payouts  *PayoutService
	tontines *TontineService
}

func NewWebhookService(verifier *processor.Verifier, st store.Store, snap *cache.BalanceSnapshot, payouts *PayoutService, tontines *TontineService) *WebhookService {
	return &WebhookService{
		verifier: verifier,
		store:    st,
		snap:     snap,
		payouts:  payouts,
		tontines: tontines,
	}
}

// Process verifies the payload signature, then routes by event kind. An
// invalid signature fails the whole request before any state change.
func (s *WebhookService) Process(ctx context.Context, payload []byte, signature string) error {
	if err := s.verifier.Verify(payload, signature); err != nil {
		webhookEvents.WithLabelValues("unverified", "rejected").Inc()
		return err
	}

	ev, err := processor.ParseEvent(payload)
	if err != nil {
		webhookEvents.WithLabelValues("malformed", "rejected").Inc()
		return err
	}

	if err := s.dispatch(ctx, ev); err != nil {
		webhookEvents.WithLabelValues(string(ev.Kind), "error").Inc()
		return err
	}
	webhookEvents.WithLabelValues(string(ev.Kind), "ok").Inc()
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, ev *processor.Event) error {
	switch ev.Kind {
	case processor.EventChargeSucceeded:
		return s.settleTopUp(ctx, ev.Reference, domain.IntentSucceeded)
	case processor.EventChargeFailed:
		return s.settleTopUp(ctx, ev.Reference, domain.IntentFailed)
	case processor.EventCheckoutCompleted:
		return s.settleCheckout(ctx, ev)
	case processor.EventPayoutPaid:
		return s.payouts.MarkPaid(ctx, ev.Reference)
	case processor.EventPayoutFailed:
		return s.payouts.MarkFailed(ctx, ev.Reference, ev.Reason)
	case processor.EventAccountUpdated:
		return s.updateCapabilities(ctx, ev)
	default:
		// Acknowledged, never an error: the provider must not retry events
		// this system does not act on.
		logger.Infof("ignoring webhook event kind=%s ref=%s", ev.Kind, ev.Reference)
		return nil
	}
}

// settleTopUp resolves a charge notification against its top-up intent. The
// already-terminal check under the row lock is the primary guard against a
// duplicate credit; the unique external reference on the ledger entry is the
// backstop should that check ever be bypassed.
func (s *WebhookService) settleTopUp(ctx context.Context, chargeRef string, status domain.IntentStatus) error {
	probe, err := s.store.GetTopUpIntentByRef(ctx, chargeRef, false)
	if err != nil {
		if errors.Is(err, domain.ErrIntentNotFound) {
			logger.Infof("charge notification for unknown reference %s, ignoring", chargeRef)
			return nil
		}
		return err
	}

	err = s.store.WithAccountLock(ctx, []int64{probe.AccountID}, func(q store.Querier) error {
		intent, err := q.GetTopUpIntentByRef(ctx, chargeRef, true)
		if err != nil {
			return err
		}
		if intent.Status != domain.IntentPending {
			return nil
		}

		if status == domain.IntentFailed {
			return q.SettleTopUpIntent(ctx, intent.ID, domain.IntentFailed, nil)
		}

		ref := chargeRef
		entry := &domain.LedgerEntry{
			RecipientID: &intent.AccountID,
			Amount:      intent.Amount,
			Currency:    intent.Currency,
			Kind:        domain.KindWalletTopup,
			Status:      domain.EntryCompleted,
			ExternalRef: &ref,
			Description: "wallet top-up",
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			if errors.Is(err, domain.ErrDuplicateReference) {
				logger.Warnf("charge %s already credited, skipping duplicate", chargeRef)
				return nil
			}
			return err
		}

		if err := q.SettleTopUpIntent(ctx, intent.ID, domain.IntentSucceeded, &entry.ID); err != nil {
			return err
		}
		return refreshBalanceHints(ctx, q, intent.AccountID)
	})
	if err != nil {
		return err
	}

	s.snap.Invalidate(ctx, probe.AccountID)
	return nil
}

func (s *WebhookService) settleCheckout(ctx context.Context, ev *processor.Event) error {
	tontineID, err1 := strconv.ParseInt(ev.Metadata["tontine_id"], 10, 64)
	accountID, err2 := strconv.ParseInt(ev.Metadata["account_id"], 10, 64)
	if err1 != nil || err2 != nil {
		logger.Warnf("checkout %s carries unusable tontine metadata, ignoring", ev.Reference)
		return nil
	}
	if !ev.Amount.IsPositive() {
		// A contribution needs a positive amount; failing here would make
		// the provider redeliver an event that can never settle.
		logger.Warnf("checkout %s carries no usable amount, ignoring", ev.Reference)
		return nil
	}

	_, err := s.tontines.RecordCheckoutContribution(ctx, ev.Reference, tontineID, accountID, ev.Amount)
	if errors.Is(err, domain.ErrTontineNotFound) || errors.Is(err, domain.ErrNotAMember) {
		logger.Warnf("checkout %s references unknown tontine or member, ignoring", ev.Reference)
		return nil
	}
	return err
}

// updateCapabilities applies provider-side capability flag changes. No
// ledger effect.
func (s *WebhookService) updateCapabilities(ctx context.Context, ev *processor.Event) error {
	accountID, err := strconv.ParseInt(ev.Metadata["account_id"], 10, 64)
	if err != nil {
		logger.Warnf("account_updated without usable account_id, ignoring")
		return nil
	}

	return s.store.WithTx(ctx, func(q store.Querier) error {
		if ref, ok := ev.Metadata["payee_ref"]; ok && ref != "" {
			if err := q.SetPayeeRef(ctx, accountID, ref); err != nil {
				return err
			}
		}
		enabled := ev.Metadata["payouts_enabled"] == "true"
		return q.SetPayoutCapability(ctx, accountID, enabled)
	})
}

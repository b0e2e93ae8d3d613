package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/store"
)

// TopUpService opens pending external charges. No ledger entry is written
// here; only webhook confirmation credits the account, so a client-side
// failure after authorization cannot fabricate funds.
type TopUpService struct {
	store store.Store
	proc  processor.Client
}

func NewTopUpService(st store.Store, proc processor.Client) *TopUpService {
	return &TopUpService{store: st, proc: proc}
}

// CreateIntent opens a charge intent with the processor and records it as a
// pending TopUpIntent. Returns the intent and the client continuation token.
func (s *TopUpService) CreateIntent(ctx context.Context, accountID int64, amount decimal.Decimal, paymentMethodRef string) (*domain.TopUpIntent, string, error) {
	if !amount.IsPositive() {
		return nil, "", domain.ErrInvalidAmount
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, "", err
	}

	customerRef, err := ensureCustomerRef(ctx, s.store, s.proc, account)
	if err != nil {
		return nil, "", err
	}

	charge, err := s.proc.CreateChargeIntent(ctx, customerRef, amount, account.Currency, paymentMethodRef)
	if errors.Is(err, processor.ErrCustomerNotFound) {
		// The stored reference no longer resolves on the provider side:
		// mint a new one, overwrite, and retry once.
		customerRef, err = recreateCustomerRef(ctx, s.store, s.proc, account)
		if err != nil {
			return nil, "", err
		}
		charge, err = s.proc.CreateChargeIntent(ctx, customerRef, amount, account.Currency, paymentMethodRef)
	}
	if err != nil {
		return nil, "", err
	}

	intent := &domain.TopUpIntent{
		AccountID:        accountID,
		Amount:           amount,
		Currency:         account.Currency,
		ExternalRef:      charge.Ref,
		PaymentMethodRef: paymentMethodRef,
		Status:           domain.IntentPending,
	}
	if err := s.store.CreateTopUpIntent(ctx, intent); err != nil {
		return nil, "", err
	}

	return intent, charge.ClientToken, nil
}

// ensureCustomerRef returns the account's processor customer reference,
// creating and persisting one when absent.
func ensureCustomerRef(ctx context.Context, st store.Store, proc processor.Client, account *domain.Account) (string, error) {
	if account.CustomerRef != nil && *account.CustomerRef != "" {
		return *account.CustomerRef, nil
	}
	return recreateCustomerRef(ctx, st, proc, account)
}

func recreateCustomerRef(ctx context.Context, st store.Store, proc processor.Client, account *domain.Account) (string, error) {
	ref, err := proc.CreateCustomer(ctx, account.ID)
	if err != nil {
		return "", err
	}
	if err := st.SetCustomerRef(ctx, account.ID, ref); err != nil {
		return "", err
	}
	account.CustomerRef = &ref
	return ref, nil
}

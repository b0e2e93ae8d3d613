// Package processor abstracts the external card-payment capability. The rest
// of the system only sees this interface; provider specifics stay in the
// adapter.
package processor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrCustomerNotFound reports that a stored customer reference no longer
// resolves on the provider side. Callers recreate the customer and retry.
var ErrCustomerNotFound = errors.New("processor: unknown customer reference")

// ChargeIntent is an opened, unconfirmed charge. ClientToken is the opaque
// continuation handed to the front-end to complete the payment.
type ChargeIntent struct {
	Ref         string `json:"ref"`
	ClientToken string `json:"client_token"`
}

// CheckoutSession is a hosted payment page session.
type CheckoutSession struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// Payout is an accepted disbursement instruction.
type Payout struct {
	Ref string `json:"ref"`
}

// Client is the outbound capability surface of the payment processor.
type Client interface {
	CreateCustomer(ctx context.Context, accountID int64) (string, error)
	CreateChargeIntent(ctx context.Context, customerRef string, amount decimal.Decimal, currency, paymentMethodRef string) (*ChargeIntent, error)
	CreateCheckoutSession(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (*CheckoutSession, error)
	CreatePayout(ctx context.Context, payeeRef string, amount decimal.Decimal, currency string) (*Payout, error)
}

// EventKind routes an inbound webhook notification.
type EventKind string

const (
	EventChargeSucceeded   EventKind = "charge_succeeded"
	EventChargeFailed      EventKind = "charge_failed"
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventPayoutPaid        EventKind = "payout_paid"
	EventPayoutFailed      EventKind = "payout_failed"
	EventAccountUpdated    EventKind = "account_updated"
	EventUnknown           EventKind = "unknown"
)

// Event is a verified, provider-neutral webhook notification.
type Event struct {
	Kind      EventKind
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Reason    string
	Metadata  map[string]string
}

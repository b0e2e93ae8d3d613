package processor

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// rawNotification covers both provider payload shapes: charge/checkout
// notifications carry transaction_status + order_id, payout notifications
// carry an explicit type + reference_no.
type rawNotification struct {
	Type              string            `json:"type"`
	TransactionStatus string            `json:"transaction_status"`
	FraudStatus       string            `json:"fraud_status"`
	OrderID           string            `json:"order_id"`
	ReferenceNo       string            `json:"reference_no"`
	GrossAmount       string            `json:"gross_amount"`
	Currency          string            `json:"currency"`
	StatusMessage     string            `json:"status_message"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseEvent normalizes a verified raw payload into an Event. Unrecognized
// shapes come back as EventUnknown, never as an error, so the provider is
// always acknowledged for events this system does not act on.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawNotification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	ev := &Event{
		Kind:      EventUnknown,
		Reference: raw.OrderID,
		Currency:  raw.Currency,
		Reason:    raw.StatusMessage,
		Metadata:  raw.Metadata,
	}
	if ev.Reference == "" {
		ev.Reference = raw.ReferenceNo
	}
	if raw.GrossAmount != "" {
		amt, err := decimal.NewFromString(raw.GrossAmount)
		if err != nil {
			return nil, fmt.Errorf("malformed gross_amount %q: %w", raw.GrossAmount, err)
		}
		ev.Amount = amt
	}

	switch raw.Type {
	case "payout_paid":
		ev.Kind = EventPayoutPaid
		return ev, nil
	case "payout_failed":
		ev.Kind = EventPayoutFailed
		return ev, nil
	case "account_updated":
		ev.Kind = EventAccountUpdated
		return ev, nil
	}

	// Charge-style notification: map the provider transaction status.
	switch raw.TransactionStatus {
	case "capture":
		if raw.FraudStatus == "accept" {
			ev.Kind = chargeKind(raw.Metadata)
		}
	case "settlement":
		ev.Kind = chargeKind(raw.Metadata)
	case "deny", "cancel", "expire":
		ev.Kind = EventChargeFailed
	}

	return ev, nil
}

// chargeKind distinguishes a hosted checkout (tontine contribution) from a
// direct top-up charge by the session metadata.
func chargeKind(metadata map[string]string) EventKind {
	if _, ok := metadata["tontine_id"]; ok {
		return EventCheckoutCompleted
	}
	return EventChargeSucceeded
}

package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/iris"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

// MidtransClient implements Client against the Midtrans gateway: core API for
// charge intents, Snap for hosted checkout sessions, Iris for payouts.
type MidtransClient struct {
	core coreapi.Client
	snap snap.Client
	iris iris.Client
}

func NewMidtransClient(serverKey string, sandbox bool) *MidtransClient {
	env := midtrans.Production
	if sandbox {
		env = midtrans.Sandbox
	}

	c := &MidtransClient{}
	c.core.New(serverKey, env)
	c.snap.New(serverKey, env)
	c.iris.New(serverKey, env)
	return c
}

// CreateCustomer mints a customer reference. The gateway has no standalone
// customer object; the reference is generated locally and attached to every
// charge as metadata so provider-side records stay correlatable.
func (c *MidtransClient) CreateCustomer(ctx context.Context, accountID int64) (string, error) {
	return fmt.Sprintf("cus-%d-%s", accountID, uuid.NewString()), nil
}

func (c *MidtransClient) CreateChargeIntent(ctx context.Context, customerRef string, amount decimal.Decimal, currency, paymentMethodRef string) (*ChargeIntent, error) {
	orderID := "topup-" + uuid.NewString()
	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: grossAmount(amount),
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID: paymentMethodRef,
		},
		Metadata: map[string]interface{}{
			"customer_ref": customerRef,
		},
	}

	res, midErr := c.core.ChargeTransaction(req)
	if midErr != nil {
		return nil, &domain.ExternalProcessorError{Op: "charge", Err: midErr}
	}

	return &ChargeIntent{Ref: orderID, ClientToken: res.RedirectURL}, nil
}

func (c *MidtransClient) CreateCheckoutSession(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (*CheckoutSession, error) {
	orderID := "session-" + uuid.NewString()
	meta := map[string]interface{}{"customer_ref": customerRef}
	for k, v := range metadata {
		meta[k] = v
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: grossAmount(amount),
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
		Metadata:   meta,
	}

	res, midErr := c.snap.CreateTransaction(req)
	if midErr != nil {
		return nil, &domain.ExternalProcessorError{Op: "checkout", Err: midErr}
	}

	return &CheckoutSession{Ref: orderID, URL: res.RedirectURL}, nil
}

func (c *MidtransClient) CreatePayout(ctx context.Context, payeeRef string, amount decimal.Decimal, currency string) (*Payout, error) {
	req := iris.CreatePayoutReq{
		Payouts: []iris.CreatePayoutDetailReq{
			{
				BeneficiaryAccount: payeeRef,
				Amount:             amount.String(),
				Notes:              "wallet payout",
			},
		},
	}

	res, midErr := c.iris.CreatePayout(req)
	if midErr != nil {
		return nil, &domain.ExternalProcessorError{Op: "payout", Err: midErr}
	}
	if len(res.Payouts) == 0 {
		return nil, &domain.ExternalProcessorError{Op: "payout", Err: fmt.Errorf("empty payout response")}
	}

	return &Payout{Ref: res.Payouts[0].ReferenceNo}, nil
}

// grossAmount converts to the gateway's whole-unit int64 amounts. Wallet
// currencies here are zero-decimal, so rounding is a no-op in practice.
func grossAmount(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

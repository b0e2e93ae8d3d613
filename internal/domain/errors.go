package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrAmountTooSmall     = errors.New("amount does not cover the fee")
	ErrDuplicateReference = errors.New("external reference already recorded")
	ErrInvalidTransition  = errors.New("entry already terminal")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrIntentNotFound     = errors.New("top-up intent not found")
	ErrPayoutNotFound     = errors.New("payout request not found")
	ErrTontineNotFound    = errors.New("tontine not found")
	ErrNotAMember         = errors.New("account is not a member of this tontine")
	ErrMemberNotFound     = errors.New("tontine member not found")
	ErrSettingsMissing    = errors.New("fee settings row is missing")
	ErrPayoutsNotEnabled  = errors.New("payouts are not enabled for this account")
)

// ExternalProcessorError wraps any failure returned by the payment capability.
type ExternalProcessorError struct {
	Op  string
	Err error
}

func (e *ExternalProcessorError) Error() string {
	return fmt.Sprintf("processor %s: %v", e.Op, e.Err)
}

func (e *ExternalProcessorError) Unwrap() error { return e.Err }

package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrRequestNotFound      = fmt.Errorf("request %w", ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("account %w", ErrNotFound)
	ErrAlreadyProcessed     = errors.New("request already processed")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrPartialSettlement    = errors.New("partial settlement")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateTransaction = errors.New("transaction id already submitted")
	ErrWithdrawalsDisabled  = errors.New("withdrawals are disabled")
	ErrReferralCycle        = errors.New("referral assignment would create a cycle")
	ErrDailyLimitReached    = errors.New("daily task limit reached")
)

// Invalid builds a validation error carrying a field-level message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

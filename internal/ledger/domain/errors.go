package domain

import "errors"

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidAccountKind     = errors.New("invalid_account_kind")
	ErrInvalidTransactionKind = errors.New("invalid_transaction_kind")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidOccurredAt      = errors.New("invalid_occurred_at")
	ErrInvalidPaymentID       = errors.New("invalid_payment_id")
	ErrInvalidRefundID        = errors.New("invalid_refund_id")
	ErrInvalidPayoutID        = errors.New("invalid_payout_id")
	ErrInvalidID              = errors.New("invalid_id")
	ErrUnbalancedTransaction  = errors.New("unbalanced_transaction")
	ErrCurrencyMismatch       = errors.New("currency_mismatch")
	ErrOrganizationMismatch   = errors.New("organization_mismatch")
	ErrTransactionNotFound    = errors.New("transaction_not_found")
	ErrAccountNotFound        = errors.New("ledger_account_not_found")
)

var preconditionErrors = []error{
	ErrInvalidOrganization,
	ErrInvalidAccountKind,
	ErrInvalidTransactionKind,
	ErrInvalidAmount,
	ErrInvalidCurrency,
	ErrInvalidOccurredAt,
	ErrInvalidPaymentID,
	ErrInvalidRefundID,
	ErrInvalidPayoutID,
	ErrInvalidID,
}

// IsPrecondition reports whether err is a caller bug that must not be retried.
func IsPrecondition(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

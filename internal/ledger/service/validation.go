package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	ledgerdomain "github.com/smallbiznis/fundledger/internal/ledger/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var fieldErrors = map[string]error{
	"OrgID":      ledgerdomain.ErrInvalidOrganization,
	"PaymentID":  ledgerdomain.ErrInvalidPaymentID,
	"RefundID":   ledgerdomain.ErrInvalidRefundID,
	"PayoutID":   ledgerdomain.ErrInvalidPayoutID,
	"Amount":     ledgerdomain.ErrInvalidAmount,
	"Currency":   ledgerdomain.ErrInvalidCurrency,
	"OccurredAt": ledgerdomain.ErrInvalidOccurredAt,
}

// validateRequest maps the first failing field to its precondition error.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if mapped, ok := fieldErrors[verrs[0].StructField()]; ok {
			return mapped
		}
	}
	return err
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func validateCurrency(currency string) error {
	if err := validate.Var(currency, "required,iso4217"); err != nil {
		return ledgerdomain.ErrInvalidCurrency
	}
	return nil
}

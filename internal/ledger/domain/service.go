package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordPaymentCaptureRequest struct {
	OrgID      snowflake.ID `validate:"gt=0"`
	PaymentID  string       `validate:"required"`
	Amount     int64        `validate:"gt=0"`
	Currency   string       `validate:"required,iso4217"`
	OccurredAt time.Time    `validate:"required"`
}

type RecordRefundRequest struct {
	OrgID      snowflake.ID `validate:"gt=0"`
	PaymentID  string       `validate:"required"`
	RefundID   string       `validate:"required"`
	Amount     int64        `validate:"gt=0"`
	Currency   string       `validate:"required,iso4217"`
	OccurredAt time.Time    `validate:"required"`
}

type RecordPayoutRequest struct {
	OrgID      snowflake.ID `validate:"gt=0"`
	PayoutID   string       `validate:"required"`
	Amount     int64        `validate:"gt=0"`
	Currency   string       `validate:"required,iso4217"`
	OccurredAt time.Time    `validate:"required"`
}

// Service books money movements. Recording the same external event more than once returns the
// transaction booked by the first call.
type Service interface {
	RecordPaymentCapture(ctx context.Context, req RecordPaymentCaptureRequest) (LedgerTransaction, error)
	RecordRefund(ctx context.Context, req RecordRefundRequest) (LedgerTransaction, error)
	RecordPayout(ctx context.Context, req RecordPayoutRequest) (LedgerTransaction, error)

	GetTransaction(ctx context.Context, orgID, id snowflake.ID) (LedgerTransaction, error)
	FindTransaction(ctx context.Context, orgID snowflake.ID, kind TransactionKind, externalID string) (*LedgerTransaction, error)
	AccountBalance(ctx context.Context, orgID snowflake.ID, kind AccountKind, currency string) (AccountBalance, error)
}

package events

import (
	"strconv"
	"time"
)

// Ledger event types written to the outbox.
const (
	EventLedgerTransactionRecorded = "ledger.transaction_recorded"
)

// TransactionRecordedPayload is published once per newly booked ledger transaction.
type TransactionRecordedPayload struct {
	TransactionID string
	Kind          string
	ExternalID    string
	PaymentID     string
	RefundID      string
	PayoutID      string
	Amount        int64
	Currency      string
	OccurredAt    time.Time
	DebitAccount  string
	CreditAccount string
}

// ToMap converts a payload into an outbox-friendly map.
func (p TransactionRecordedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"ledger_transaction_id": p.TransactionID,
		"kind":                  p.Kind,
		"external_id":           p.ExternalID,
		"amount":                strconv.FormatInt(p.Amount, 10),
		"currency":              p.Currency,
		"occurred_at":           p.OccurredAt.UTC().Format(time.RFC3339Nano),
		"debit_account":         p.DebitAccount,
		"credit_account":        p.CreditAccount,
	}
	if p.PaymentID != "" {
		payload["payment_id"] = p.PaymentID
	}
	if p.RefundID != "" {
		payload["refund_id"] = p.RefundID
	}
	if p.PayoutID != "" {
		payload["payout_id"] = p.PayoutID
	}
	return payload
}

// TransactionDedupeKey keys the outbox row of a ledger transaction.
func TransactionDedupeKey(transactionID string) string {
	return "ledger_transaction:" + transactionID
}

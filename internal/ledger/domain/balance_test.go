package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBalanced(t *testing.T) {
	txn := LedgerTransaction{ID: 10, OrgID: 1, Amount: 500, Currency: "USD"}
	leg := func(entryType EntryType, mutate ...func(*LedgerEntry)) LedgerEntry {
		entry := LedgerEntry{
			ID:                  20,
			OrgID:               txn.OrgID,
			LedgerAccountID:     30,
			LedgerTransactionID: txn.ID,
			EntryType:           entryType,
			Amount:              txn.Amount,
			Currency:            txn.Currency,
		}
		for _, fn := range mutate {
			fn(&entry)
		}
		return entry
	}

	tests := []struct {
		name    string
		entries []LedgerEntry
		want    error
	}{
		{
			name:    "balanced",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeCredit)},
		},
		{
			name:    "single leg",
			entries: []LedgerEntry{leg(EntryTypeDebit)},
			want:    ErrUnbalancedTransaction,
		},
		{
			name:    "three legs",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeCredit), leg(EntryTypeCredit)},
			want:    ErrUnbalancedTransaction,
		},
		{
			name:    "two debits",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeDebit)},
			want:    ErrUnbalancedTransaction,
		},
		{
			name:    "unknown entry type",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryType("MEMO"))},
			want:    ErrUnbalancedTransaction,
		},
		{
			name: "currency mismatch",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeCredit, func(e *LedgerEntry) {
				e.Currency = "EUR"
			})},
			want: ErrCurrencyMismatch,
		},
		{
			name: "organization mismatch",
			entries: []LedgerEntry{leg(EntryTypeDebit, func(e *LedgerEntry) {
				e.OrgID = 2
			}), leg(EntryTypeCredit)},
			want: ErrOrganizationMismatch,
		},
		{
			name: "entry of another transaction",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeCredit, func(e *LedgerEntry) {
				e.LedgerTransactionID = 11
			})},
			want: ErrUnbalancedTransaction,
		},
		{
			name: "legs differ",
			entries: []LedgerEntry{leg(EntryTypeDebit), leg(EntryTypeCredit, func(e *LedgerEntry) {
				e.Amount = 499
			})},
			want: ErrUnbalancedTransaction,
		},
		{
			name: "legs agree with each other but not the transaction",
			entries: []LedgerEntry{
				leg(EntryTypeDebit, func(e *LedgerEntry) { e.Amount = 400 }),
				leg(EntryTypeCredit, func(e *LedgerEntry) { e.Amount = 400 }),
			},
			want: ErrUnbalancedTransaction,
		},
		{
			name: "non-positive leg",
			entries: []LedgerEntry{leg(EntryTypeDebit, func(e *LedgerEntry) {
				e.Amount = 0
			}), leg(EntryTypeCredit)},
			want: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBalanced(txn, tt.entries)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

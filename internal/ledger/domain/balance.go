package domain

// ValidateBalanced enforces the double-entry law on a two-leg transaction: one debit and one
// credit, each equal to the transaction amount, in the transaction's currency and organization.
func ValidateBalanced(txn LedgerTransaction, entries []LedgerEntry) error {
	if len(entries) != 2 {
		return ErrUnbalancedTransaction
	}

	var debits, credits int64
	var debitLegs, creditLegs int
	for _, entry := range entries {
		if entry.Amount <= 0 {
			return ErrInvalidAmount
		}
		if entry.Currency != txn.Currency {
			return ErrCurrencyMismatch
		}
		if entry.OrgID != txn.OrgID {
			return ErrOrganizationMismatch
		}
		if entry.LedgerTransactionID != txn.ID {
			return ErrUnbalancedTransaction
		}
		switch entry.EntryType {
		case EntryTypeDebit:
			debits += entry.Amount
			debitLegs++
		case EntryTypeCredit:
			credits += entry.Amount
			creditLegs++
		default:
			return ErrUnbalancedTransaction
		}
	}

	if debitLegs != 1 || creditLegs != 1 {
		return ErrUnbalancedTransaction
	}
	if debits != credits || debits != txn.Amount {
		return ErrUnbalancedTransaction
	}
	return nil
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountKind identifies one of the well-known accounts in an organization's chart of accounts.
type AccountKind string

const (
	AccountKindOperating         AccountKind = "OPERATING"
	AccountKindProcessorClearing AccountKind = "PROCESSOR_CLEARING"
	AccountKindPlatformFees      AccountKind = "PLATFORM_FEES"
	AccountKindRefunds           AccountKind = "REFUNDS"
	AccountKindPayouts           AccountKind = "PAYOUTS"
)

var accountLabels = map[AccountKind]string{
	AccountKindOperating:         "Operating",
	AccountKindProcessorClearing: "Processor Clearing",
	AccountKindPlatformFees:      "Platform Fees",
	AccountKindRefunds:           "Refunds",
	AccountKindPayouts:           "Payouts",
}

// AccountKinds returns every known account kind in canonical order.
func AccountKinds() []AccountKind {
	return []AccountKind{
		AccountKindOperating,
		AccountKindPayouts,
		AccountKindPlatformFees,
		AccountKindProcessorClearing,
		AccountKindRefunds,
	}
}

// Valid reports whether k belongs to the closed set of account kinds.
func (k AccountKind) Valid() bool {
	_, ok := accountLabels[k]
	return ok
}

// Label returns the display name used when the account is provisioned.
func (k AccountKind) Label() string {
	return accountLabels[k]
}

// TransactionKind identifies the external event a ledger transaction books.
type TransactionKind string

const (
	TransactionKindPaymentCapture TransactionKind = "PAYMENT_CAPTURE"
	TransactionKindPaymentRefund  TransactionKind = "PAYMENT_REFUND"
	TransactionKindPayout         TransactionKind = "PAYOUT"
)

// Valid reports whether k is a supported transaction kind.
func (k TransactionKind) Valid() bool {
	_, ok := postingRules[k]
	return ok
}

// EntryType is the side of a posting.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// ReferenceType names the external object an entry documents.
type ReferenceType string

const (
	ReferenceTypePayment ReferenceType = "PAYMENT"
	ReferenceTypeRefund  ReferenceType = "REFUND"
	ReferenceTypePayout  ReferenceType = "PAYOUT"
)

// PostingRule fixes which accounts a transaction kind debits and credits.
type PostingRule struct {
	Debit     AccountKind
	Credit    AccountKind
	Reference ReferenceType
}

var postingRules = map[TransactionKind]PostingRule{
	TransactionKindPaymentCapture: {
		Debit:     AccountKindProcessorClearing,
		Credit:    AccountKindOperating,
		Reference: ReferenceTypePayment,
	},
	TransactionKindPaymentRefund: {
		Debit:     AccountKindRefunds,
		Credit:    AccountKindProcessorClearing,
		Reference: ReferenceTypeRefund,
	},
	TransactionKindPayout: {
		Debit:     AccountKindPayouts,
		Credit:    AccountKindProcessorClearing,
		Reference: ReferenceTypePayout,
	},
}

// PostingRuleFor returns the posting rule of a transaction kind.
func PostingRuleFor(kind TransactionKind) (PostingRule, bool) {
	rule, ok := postingRules[kind]
	return rule, ok
}

// LedgerAccount is a named bucket of money in one organization's chart of accounts.
type LedgerAccount struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_ledger_accounts_org_kind,priority:1"`
	Kind      AccountKind  `json:"kind" gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_org_kind,priority:2"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	IsSystem  bool         `json:"is_system" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerTransaction is one balanced financial event. It is immutable once written.
type LedgerTransaction struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID    `json:"org_id" gorm:"not null"`
	Kind       TransactionKind `json:"kind" gorm:"type:text;not null"`
	ExternalID string          `json:"external_id" gorm:"type:text;not null"`
	PaymentID  *string         `json:"payment_id,omitempty" gorm:"type:text"`
	RefundID   *string         `json:"refund_id,omitempty" gorm:"type:text"`
	PayoutID   *string         `json:"payout_id,omitempty" gorm:"type:text"`
	Amount     int64           `json:"amount" gorm:"not null"`
	Currency   string          `json:"currency" gorm:"type:text;not null"`
	OccurredAt time.Time       `json:"occurred_at" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`

	Entries []LedgerEntry `json:"entries,omitempty" gorm:"-"`
	// Replayed is set when the call found the event already booked.
	Replayed bool `json:"-" gorm:"-"`
}

// TableName sets the database table name.
func (LedgerTransaction) TableName() string { return "ledger_transactions" }

// Debit returns the debit leg, if loaded.
func (t LedgerTransaction) Debit() (LedgerEntry, bool) {
	return t.entry(EntryTypeDebit)
}

// Credit returns the credit leg, if loaded.
func (t LedgerTransaction) Credit() (LedgerEntry, bool) {
	return t.entry(EntryTypeCredit)
}

func (t LedgerTransaction) entry(entryType EntryType) (LedgerEntry, bool) {
	for _, entry := range t.Entries {
		if entry.EntryType == entryType {
			return entry, true
		}
	}
	return LedgerEntry{}, false
}

// LedgerEntry is one leg of a transaction against one account.
type LedgerEntry struct {
	ID                  snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID               snowflake.ID  `json:"org_id" gorm:"not null"`
	LedgerAccountID     snowflake.ID  `json:"ledger_account_id" gorm:"not null"`
	LedgerTransactionID snowflake.ID  `json:"ledger_transaction_id" gorm:"not null"`
	EntryType           EntryType     `json:"entry_type" gorm:"type:text;not null"`
	Amount              int64         `json:"amount" gorm:"not null"`
	Currency            string        `json:"currency" gorm:"type:text;not null"`
	OccurredAt          time.Time     `json:"occurred_at" gorm:"not null"`
	ReferenceType       ReferenceType `json:"reference_type" gorm:"type:text;not null"`
	ReferenceID         string        `json:"reference_id" gorm:"type:text;not null"`
	CreatedAt           time.Time     `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// AccountBalance is the net position of one account in one currency.
// Net is debits minus credits.
type AccountBalance struct {
	AccountID snowflake.ID `json:"account_id"`
	Kind      AccountKind  `json:"kind"`
	Currency  string       `json:"currency"`
	Debits    int64        `json:"debits"`
	Credits   int64        `json:"credits"`
	Net       int64        `json:"net"`
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the ledger store. Every method runs against the handle it is given, so callers
// decide whether a call is part of a database transaction.
type Repository interface {
	FindAccount(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind AccountKind) (*LedgerAccount, error)
	// InsertAccount inserts the account unless (org_id, kind) already exists. It reports whether
	// this call created the row.
	InsertAccount(ctx context.Context, db *gorm.DB, account *LedgerAccount) (bool, error)

	FindTransactionByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind TransactionKind, externalID string) (*LedgerTransaction, error)
	FindTransactionByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*LedgerTransaction, error)
	// InsertTransaction inserts the transaction unless (org_id, kind, external_id) already exists.
	// It reports whether this call created the row.
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *LedgerTransaction) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, orgID, transactionID snowflake.ID) ([]LedgerEntry, error)

	SumAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, currency string) (debits int64, credits int64, err error)
}

// AccountRegistry resolves, and lazily provisions, the single account of a kind for an organization.
type AccountRegistry interface {
	EnsureAccount(ctx context.Context, orgID snowflake.ID, kind AccountKind) (LedgerAccount, error)
	EnsureAccounts(ctx context.Context, orgID snowflake.ID, kinds []AccountKind) ([]LedgerAccount, error)
	// WithTx returns a registry bound to an open database transaction.
	WithTx(tx *gorm.DB) AccountRegistry
}

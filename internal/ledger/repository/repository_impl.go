package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fundledger/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind domain.AccountKind) (*domain.LedgerAccount, error) {
	var item domain.LedgerAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, kind, name, is_system, created_at
		 FROM ledger_accounts
		 WHERE org_id = ? AND kind = ?
		 LIMIT 1`,
		orgID,
		kind,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *domain.LedgerAccount) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, org_id, kind, name, is_system, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, kind) DO NOTHING`,
		account.ID,
		account.OrgID,
		account.Kind,
		account.Name,
		account.IsSystem,
		account.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindTransactionByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind domain.TransactionKind, externalID string) (*domain.LedgerTransaction, error) {
	var item domain.LedgerTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, kind, external_id, payment_id, refund_id, payout_id,
			amount, currency, occurred_at, created_at
		 FROM ledger_transactions
		 WHERE org_id = ? AND kind = ? AND external_id = ?
		 LIMIT 1`,
		orgID,
		kind,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindTransactionByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.LedgerTransaction, error) {
	var item domain.LedgerTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, kind, external_id, payment_id, refund_id, payout_id,
			amount, currency, occurred_at, created_at
		 FROM ledger_transactions
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`,
		orgID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.LedgerTransaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_transactions (
			id, org_id, kind, external_id, payment_id, refund_id, payout_id,
			amount, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, kind, external_id) DO NOTHING`,
		txn.ID,
		txn.OrgID,
		txn.Kind,
		txn.ExternalID,
		txn.PaymentID,
		txn.RefundID,
		txn.PayoutID,
		txn.Amount,
		txn.Currency,
		txn.OccurredAt,
		txn.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, org_id, ledger_account_id, ledger_transaction_id, entry_type,
			amount, currency, occurred_at, reference_type, reference_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.LedgerAccountID,
		entry.LedgerTransactionID,
		entry.EntryType,
		entry.Amount,
		entry.Currency,
		entry.OccurredAt,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, orgID, transactionID snowflake.ID) ([]domain.LedgerEntry, error) {
	var items []domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, ledger_account_id, ledger_transaction_id, entry_type,
			amount, currency, occurred_at, reference_type, reference_id, created_at
		 FROM ledger_entries
		 WHERE org_id = ? AND ledger_transaction_id = ?
		 ORDER BY entry_type DESC`,
		orgID,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, currency string) (int64, int64, error) {
	var row struct {
		Debits  int64
		Credits int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN amount ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE 0 END), 0) AS credits
		 FROM ledger_entries
		 WHERE org_id = ? AND ledger_account_id = ? AND currency = ?`,
		orgID,
		accountID,
		currency,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Debits, row.Credits, nil
}

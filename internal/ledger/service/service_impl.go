package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fundledger/internal/ledger/domain"
	"github.com/smallbiznis/fundledger/internal/ledger/registry"
	obsmetrics "github.com/smallbiznis/fundledger/internal/observability/metrics"
	"github.com/smallbiznis/fundledger/internal/observability/tracing"
	"github.com/smallbiznis/fundledger/pkg/db"
	"github.com/smallbiznis/fundledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Registry   ledgerdomain.AccountRegistry
	Clock      clock.Clock
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	registry   ledgerdomain.AccountRegistry
	clock      clock.Clock
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		registry:   p.Registry,
		clock:      p.Clock,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// posting is a validated request to book one transaction.
type posting struct {
	kind       ledgerdomain.TransactionKind
	orgID      snowflake.ID
	externalID string
	paymentID  *string
	refundID   *string
	payoutID   *string
	amount     int64
	currency   string
	occurredAt time.Time
}

func (s *Service) RecordPaymentCapture(ctx context.Context, req ledgerdomain.RecordPaymentCaptureRequest) (ledgerdomain.LedgerTransaction, error) {
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.Currency = normalizeCurrency(req.Currency)
	if err := validateRequest(req); err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	return s.record(ctx, posting{
		kind:       ledgerdomain.TransactionKindPaymentCapture,
		orgID:      req.OrgID,
		externalID: req.PaymentID,
		paymentID:  &req.PaymentID,
		amount:     req.Amount,
		currency:   req.Currency,
		occurredAt: req.OccurredAt,
	})
}

func (s *Service) RecordRefund(ctx context.Context, req ledgerdomain.RecordRefundRequest) (ledgerdomain.LedgerTransaction, error) {
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.RefundID = strings.TrimSpace(req.RefundID)
	req.Currency = normalizeCurrency(req.Currency)
	if err := validateRequest(req); err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	return s.record(ctx, posting{
		kind:       ledgerdomain.TransactionKindPaymentRefund,
		orgID:      req.OrgID,
		externalID: req.RefundID,
		paymentID:  &req.PaymentID,
		refundID:   &req.RefundID,
		amount:     req.Amount,
		currency:   req.Currency,
		occurredAt: req.OccurredAt,
	})
}

func (s *Service) RecordPayout(ctx context.Context, req ledgerdomain.RecordPayoutRequest) (ledgerdomain.LedgerTransaction, error) {
	req.PayoutID = strings.TrimSpace(req.PayoutID)
	req.Currency = normalizeCurrency(req.Currency)
	if err := validateRequest(req); err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	return s.record(ctx, posting{
		kind:       ledgerdomain.TransactionKindPayout,
		orgID:      req.OrgID,
		externalID: req.PayoutID,
		payoutID:   &req.PayoutID,
		amount:     req.Amount,
		currency:   req.Currency,
		occurredAt: req.OccurredAt,
	})
}

var spanNames = map[ledgerdomain.TransactionKind]string{
	ledgerdomain.TransactionKindPaymentCapture: "ledger.record_payment_capture",
	ledgerdomain.TransactionKindPaymentRefund:  "ledger.record_refund",
	ledgerdomain.TransactionKindPayout:         "ledger.record_payout",
}

func (s *Service) record(ctx context.Context, p posting) (ledgerdomain.LedgerTransaction, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, spanNames[p.kind],
		attribute.String("org_id", p.orgID.String()),
		attribute.String("ledger.kind", string(p.kind)),
		attribute.String("ledger.external_id", p.externalID),
	)

	txn, err := s.book(ctx, p)

	outcome := "created"
	switch {
	case err != nil:
		outcome = "failed"
	case txn.Replayed:
		outcome = "replayed"
	}
	span.SetAttributes(attribute.String("ledger.outcome", outcome))
	s.obsMetrics.RecordTransaction(ctx, string(p.kind), outcome, time.Since(start))
	tracing.EndSpan(span, err)
	return txn, err
}

func (s *Service) book(ctx context.Context, p posting) (ledgerdomain.LedgerTransaction, error) {
	log := s.log.With(
		zap.String("org_id", p.orgID.String()),
		zap.String("kind", string(p.kind)),
		zap.String("external_id", p.externalID),
	)

	existing, err := s.repo.FindTransactionByExternalID(ctx, s.db, p.orgID, p.kind, p.externalID)
	if err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	if existing != nil {
		return s.replay(ctx, s.db, log, *existing, p)
	}

	rule, ok := ledgerdomain.PostingRuleFor(p.kind)
	if !ok {
		return ledgerdomain.LedgerTransaction{}, ledgerdomain.ErrInvalidTransactionKind
	}

	var (
		result ledgerdomain.LedgerTransaction
		bound  ledgerdomain.AccountRegistry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound = s.registry.WithTx(tx)
		accounts, err := bound.EnsureAccounts(ctx, p.orgID, []ledgerdomain.AccountKind{rule.Debit, rule.Credit})
		if err != nil {
			return err
		}
		debitAccount, creditAccount := accounts[0], accounts[1]

		txn := ledgerdomain.LedgerTransaction{
			ID:         s.genID.Generate(),
			OrgID:      p.orgID,
			Kind:       p.kind,
			ExternalID: p.externalID,
			PaymentID:  p.paymentID,
			RefundID:   p.refundID,
			PayoutID:   p.payoutID,
			Amount:     p.amount,
			Currency:   p.currency,
			OccurredAt: p.occurredAt.UTC(),
			CreatedAt:  s.clock.Now(),
		}
		inserted, err := s.repo.InsertTransaction(ctx, tx, &txn)
		if err != nil {
			return err
		}
		if !inserted {
			winner, err := s.repo.FindTransactionByExternalID(ctx, tx, p.orgID, p.kind, p.externalID)
			if err != nil {
				return err
			}
			if winner == nil {
				return fmt.Errorf("%w: %s %s after insert conflict", ledgerdomain.ErrTransactionNotFound, p.kind, p.externalID)
			}
			result, err = s.replay(ctx, tx, log, *winner, p)
			return err
		}

		entries := []ledgerdomain.LedgerEntry{
			s.entry(txn, debitAccount, ledgerdomain.EntryTypeDebit, rule.Reference),
			s.entry(txn, creditAccount, ledgerdomain.EntryTypeCredit, rule.Reference),
		}
		if err := ledgerdomain.ValidateBalanced(txn, entries); err != nil {
			return err
		}
		for i := range entries {
			if err := s.repo.InsertEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}

		if s.outbox != nil {
			payload := events.TransactionRecordedPayload{
				TransactionID: txn.ID.String(),
				Kind:          string(txn.Kind),
				ExternalID:    txn.ExternalID,
				PaymentID:     deref(txn.PaymentID),
				RefundID:      deref(txn.RefundID),
				PayoutID:      deref(txn.PayoutID),
				Amount:        txn.Amount,
				Currency:      txn.Currency,
				OccurredAt:    txn.OccurredAt,
				DebitAccount:  string(debitAccount.Kind),
				CreditAccount: string(creditAccount.Kind),
			}.ToMap()
			for key, value := range correlation.Metadata(ctx) {
				payload[key] = value
			}
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				OrgID:     p.orgID,
				Type:      events.EventLedgerTransactionRecorded,
				Payload:   payload,
				DedupeKey: events.TransactionDedupeKey(txn.ID.String()),
			}); err != nil {
				return err
			}
		}

		txn.Entries = entries
		result = txn
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost a race on a unique key the ON CONFLICT target does not cover.
			winner, findErr := s.repo.FindTransactionByExternalID(ctx, s.db, p.orgID, p.kind, p.externalID)
			if findErr == nil && winner != nil {
				return s.replay(ctx, s.db, log, *winner, p)
			}
		}
		log.Error("failed to record ledger transaction", zap.Error(err))
		return ledgerdomain.LedgerTransaction{}, err
	}

	registry.Committed(ctx, bound)

	if result.Replayed {
		return result, nil
	}
	log.Info("ledger transaction recorded",
		zap.String("ledger_transaction_id", result.ID.String()),
		zap.Int64("amount", result.Amount),
		zap.String("currency", result.Currency),
	)
	return result, nil
}

func (s *Service) entry(txn ledgerdomain.LedgerTransaction, account ledgerdomain.LedgerAccount, entryType ledgerdomain.EntryType, reference ledgerdomain.ReferenceType) ledgerdomain.LedgerEntry {
	return ledgerdomain.LedgerEntry{
		ID:                  s.genID.Generate(),
		OrgID:               txn.OrgID,
		LedgerAccountID:     account.ID,
		LedgerTransactionID: txn.ID,
		EntryType:           entryType,
		Amount:              txn.Amount,
		Currency:            txn.Currency,
		OccurredAt:          txn.OccurredAt,
		ReferenceType:       reference,
		ReferenceID:         txn.ExternalID,
		CreatedAt:           txn.CreatedAt,
	}
}

// replay returns the stored transaction for a correlation key that is already booked. The stored
// row wins; a differing payload is logged and otherwise ignored.
func (s *Service) replay(ctx context.Context, conn *gorm.DB, log *zap.Logger, existing ledgerdomain.LedgerTransaction, p posting) (ledgerdomain.LedgerTransaction, error) {
	entries, err := s.repo.ListEntries(ctx, conn, existing.OrgID, existing.ID)
	if err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	existing.Entries = entries
	existing.Replayed = true

	if existing.Amount != p.amount || existing.Currency != p.currency || deref(existing.PaymentID) != deref(p.paymentID) {
		log.Warn("ledger transaction replayed with a different payload",
			zap.String("ledger_transaction_id", existing.ID.String()),
			zap.Int64("stored_amount", existing.Amount),
			zap.Int64("request_amount", p.amount),
			zap.String("stored_currency", existing.Currency),
			zap.String("request_currency", p.currency),
		)
	} else {
		log.Debug("ledger transaction replayed", zap.String("ledger_transaction_id", existing.ID.String()))
	}
	return existing, nil
}

func (s *Service) GetTransaction(ctx context.Context, orgID snowflake.ID, id snowflake.ID) (ledgerdomain.LedgerTransaction, error) {
	if orgID == 0 {
		return ledgerdomain.LedgerTransaction{}, ledgerdomain.ErrInvalidOrganization
	}
	if id == 0 {
		return ledgerdomain.LedgerTransaction{}, ledgerdomain.ErrInvalidID
	}

	txn, err := s.repo.FindTransactionByID(ctx, s.db, orgID, id)
	if err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	if txn == nil {
		return ledgerdomain.LedgerTransaction{}, ledgerdomain.ErrTransactionNotFound
	}
	entries, err := s.repo.ListEntries(ctx, s.db, orgID, txn.ID)
	if err != nil {
		return ledgerdomain.LedgerTransaction{}, err
	}
	txn.Entries = entries
	return *txn, nil
}

func (s *Service) FindTransaction(ctx context.Context, orgID snowflake.ID, kind ledgerdomain.TransactionKind, externalID string) (*ledgerdomain.LedgerTransaction, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if !kind.Valid() {
		return nil, ledgerdomain.ErrInvalidTransactionKind
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ledgerdomain.ErrInvalidID
	}

	txn, err := s.repo.FindTransactionByExternalID(ctx, s.db, orgID, kind, externalID)
	if err != nil || txn == nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, s.db, orgID, txn.ID)
	if err != nil {
		return nil, err
	}
	txn.Entries = entries
	return txn, nil
}

// AccountBalance sums the entries of one account. An account that was never provisioned has a
// zero balance; reading it does not provision it.
func (s *Service) AccountBalance(ctx context.Context, orgID snowflake.ID, kind ledgerdomain.AccountKind, currency string) (ledgerdomain.AccountBalance, error) {
	if orgID == 0 {
		return ledgerdomain.AccountBalance{}, ledgerdomain.ErrInvalidOrganization
	}
	if !kind.Valid() {
		return ledgerdomain.AccountBalance{}, ledgerdomain.ErrInvalidAccountKind
	}
	currency = normalizeCurrency(currency)
	if err := validateCurrency(currency); err != nil {
		return ledgerdomain.AccountBalance{}, err
	}

	balance := ledgerdomain.AccountBalance{Kind: kind, Currency: currency}
	account, err := s.repo.FindAccount(ctx, s.db, orgID, kind)
	if err != nil {
		return ledgerdomain.AccountBalance{}, err
	}
	if account == nil {
		return balance, nil
	}

	debits, credits, err := s.repo.SumAccount(ctx, s.db, orgID, account.ID, currency)
	if err != nil {
		return ledgerdomain.AccountBalance{}, err
	}
	balance.AccountID = account.ID
	balance.Debits = debits
	balance.Credits = credits
	balance.Net = debits - credits
	return balance, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

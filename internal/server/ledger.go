package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/fundledger/internal/ledger/domain"
	"github.com/smallbiznis/fundledger/internal/reference"
)

type recordCaptureRequest struct {
	PaymentID  string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

type recordRefundRequest struct {
	PaymentID  string `json:"payment_id"`
	RefundID   string `json:"refund_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

type recordPayoutRequest struct {
	PayoutID   string `json:"payout_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

type entryResponse struct {
	ID              string `json:"id"`
	LedgerAccountID string `json:"ledger_account_id"`
	EntryType       string `json:"entry_type"`
	Amount          int64  `json:"amount"`
	AmountDisplay   string `json:"amount_display"`
	Currency        string `json:"currency"`
	ReferenceType   string `json:"reference_type"`
	ReferenceID     string `json:"reference_id"`
}

type transactionResponse struct {
	ID            string          `json:"id"`
	OrgID         string          `json:"org_id"`
	Kind          string          `json:"kind"`
	ExternalID    string          `json:"external_id"`
	PaymentID     *string         `json:"payment_id,omitempty"`
	RefundID      *string         `json:"refund_id,omitempty"`
	PayoutID      *string         `json:"payout_id,omitempty"`
	Amount        int64           `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CreatedAt     time.Time       `json:"created_at"`
	Replayed      bool            `json:"replayed"`
	Entries       []entryResponse `json:"entries"`
}

type balanceResponse struct {
	AccountID  string `json:"account_id,omitempty"`
	Kind       string `json:"kind"`
	Currency   string `json:"currency"`
	Debits     int64  `json:"debits"`
	Credits    int64  `json:"credits"`
	Net        int64  `json:"net"`
	NetDisplay string `json:"net_display"`
}

func (s *Server) RecordPaymentCapture(c *gin.Context) {
	var req recordCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidOccurredAt)
		return
	}

	c.Set("ledger_kind", string(ledgerdomain.TransactionKindPaymentCapture))
	txn, err := s.ledgerSvc.RecordPaymentCapture(c.Request.Context(), ledgerdomain.RecordPaymentCaptureRequest{
		OrgID:      orgIDFromGin(c),
		PaymentID:  req.PaymentID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		OccurredAt: occurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondRecorded(c, txn)
}

func (s *Server) RecordRefund(c *gin.Context) {
	var req recordRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidOccurredAt)
		return
	}

	c.Set("ledger_kind", string(ledgerdomain.TransactionKindPaymentRefund))
	txn, err := s.ledgerSvc.RecordRefund(c.Request.Context(), ledgerdomain.RecordRefundRequest{
		OrgID:      orgIDFromGin(c),
		PaymentID:  req.PaymentID,
		RefundID:   req.RefundID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		OccurredAt: occurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondRecorded(c, txn)
}

func (s *Server) RecordPayout(c *gin.Context) {
	var req recordPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidOccurredAt)
		return
	}

	c.Set("ledger_kind", string(ledgerdomain.TransactionKindPayout))
	txn, err := s.ledgerSvc.RecordPayout(c.Request.Context(), ledgerdomain.RecordPayoutRequest{
		OrgID:      orgIDFromGin(c),
		PayoutID:   req.PayoutID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		OccurredAt: occurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondRecorded(c, txn)
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidID)
		return
	}

	txn, err := s.ledgerSvc.GetTransaction(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newTransactionResponse(txn)})
}

func (s *Server) GetAccountBalance(c *gin.Context) {
	kind := ledgerdomain.AccountKind(strings.ToUpper(strings.TrimSpace(c.Param("kind"))))
	currency := c.Query("currency")

	balance, err := s.ledgerSvc.AccountBalance(c.Request.Context(), orgIDFromGin(c), kind, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := balanceResponse{
		Kind:       string(balance.Kind),
		Currency:   balance.Currency,
		Debits:     balance.Debits,
		Credits:    balance.Credits,
		Net:        balance.Net,
		NetDisplay: reference.FormatAmount(balance.Net, balance.Currency),
	}
	if balance.AccountID != 0 {
		resp.AccountID = balance.AccountID.String()
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func respondRecorded(c *gin.Context, txn ledgerdomain.LedgerTransaction) {
	status := http.StatusCreated
	if txn.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": newTransactionResponse(txn)})
}

func newTransactionResponse(txn ledgerdomain.LedgerTransaction) transactionResponse {
	entries := make([]entryResponse, 0, len(txn.Entries))
	for _, entry := range txn.Entries {
		entries = append(entries, entryResponse{
			ID:              entry.ID.String(),
			LedgerAccountID: entry.LedgerAccountID.String(),
			EntryType:       string(entry.EntryType),
			Amount:          entry.Amount,
			AmountDisplay:   reference.FormatAmount(entry.Amount, entry.Currency),
			Currency:        entry.Currency,
			ReferenceType:   string(entry.ReferenceType),
			ReferenceID:     entry.ReferenceID,
		})
	}
	return transactionResponse{
		ID:            txn.ID.String(),
		OrgID:         txn.OrgID.String(),
		Kind:          string(txn.Kind),
		ExternalID:    txn.ExternalID,
		PaymentID:     txn.PaymentID,
		RefundID:      txn.RefundID,
		PayoutID:      txn.PayoutID,
		Amount:        txn.Amount,
		AmountDisplay: reference.FormatAmount(txn.Amount, txn.Currency),
		Currency:      txn.Currency,
		OccurredAt:    txn.OccurredAt,
		CreatedAt:     txn.CreatedAt,
		Replayed:      txn.Replayed,
		Entries:       entries,
	}
}

package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DisbursementResult is the normalized form of a B2C result or a bank transfer result.
type DisbursementResult struct {
	Source        AuditSource
	Keys          DisbursementKeys
	Success       bool
	ResultCode    string
	ResultDesc    string
	TransactionID string
	Receipt       string
	Amount        decimal.Decimal
	Charges       decimal.Decimal
	RecipientName string
	Signature     string
	Raw           json.RawMessage
}

// LedgerReference is stored as transaction_ref on the disbursement.
func (e *DisbursementResult) LedgerReference() string {
	if e.Receipt != "" {
		return e.Receipt
	}
	return e.TransactionID
}

// MirrorReference is stored as the payment reference on the status mirror.
func (e *DisbursementResult) MirrorReference() string {
	if e.TransactionID != "" {
		return e.TransactionID
	}
	return e.Receipt
}

// DisbursementTimeout is the normalized queue-timeout notice for a B2C request.
type DisbursementTimeout struct {
	Source     AuditSource
	Keys       DisbursementKeys
	ResultCode string
	ResultDesc string
	Raw        json.RawMessage
}

// Collection is a confirmed incoming payment from a payer, keyed by Reference + Method.
type Collection struct {
	Source        AuditSource
	Method        PaymentMethod
	Reference     string
	RequestID     string
	AdmissionNo   string
	Amount        decimal.Decimal
	PaidAt        time.Time
	PayerName     string
	PayerPhone    string
	Narration     string
	Notes         string
	BankName      string
	AccountNumber string
	ReceiptPrefix string
	Signature     string
	Raw           json.RawMessage
}

func (c *Collection) ReceiptNo() string {
	return c.ReceiptPrefix + c.Reference
}

// RecordsBankTransaction reports whether a bank_transactions mirror row is written.
func (c *Collection) RecordsBankTransaction() bool {
	return c.BankName != ""
}

// RecordsMpesaTransaction reports whether an mpesa_transactions raw row is written.
func (c *Collection) RecordsMpesaTransaction() bool {
	return c.Method == PaymentMethodMpesa
}

// Validate checks the fields required before the ledger may be touched.
func (c *Collection) Validate() error {
	if strings.TrimSpace(c.Reference) == "" {
		return NewParseError(c.Source, "reference", "transaction reference is required")
	}
	if strings.TrimSpace(c.AdmissionNo) == "" {
		return NewParseError(c.Source, "account_reference", "billing reference is required")
	}
	if !c.Amount.IsPositive() {
		return NewParseError(c.Source, "amount", "amount must be greater than zero")
	}
	return nil
}

// AccountQuery asks whether a payer may pay into an admission number. It never mutates the ledger.
type AccountQuery struct {
	Source      AuditSource
	RequestID   string
	AdmissionNo string
	Amount      decimal.Decimal
	Signature   string
	Raw         json.RawMessage
}

// BankWebhook is a generic bank notification whose purpose is decided by the account reference.
type BankWebhook struct {
	AccountRef      string
	Narration       string
	TransactionRef  string
	Amount          decimal.Decimal
	TransactionDate time.Time
	BankName        string
	PayerName       string
	SenderAccount   string
	Signature       string
	Raw             json.RawMessage
}

// Collection converts a fee-purpose bank webhook into a collection. The caller
// still has to Validate it: generic banks often omit the amount or reference.
func (w *BankWebhook) Collection() *Collection {
	return &Collection{
		Source:        SourceBankWebhook,
		Method:        PaymentMethodBank,
		Reference:     w.TransactionRef,
		AdmissionNo:   w.AccountRef,
		Amount:        w.Amount,
		PaidAt:        w.TransactionDate,
		PayerName:     w.PayerName,
		Narration:     w.Narration,
		Notes:         w.BankName + " Payment - " + w.AccountRef,
		BankName:      w.BankName,
		AccountNumber: w.SenderAccount,
		ReceiptPrefix: "BANK-",
		Signature:     w.Signature,
		Raw:           w.Raw,
	}
}

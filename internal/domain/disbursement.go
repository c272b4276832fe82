// internal/domain/disbursement.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type DisbursementType string

const (
	DisbursementSalary   DisbursementType = "salary"
	DisbursementSupplier DisbursementType = "supplier"
	DisbursementOther    DisbursementType = "other"
)

type DisbursementStatus string

const (
	DisbursementPending   DisbursementStatus = "pending"
	DisbursementCompleted DisbursementStatus = "completed"
	DisbursementFailed    DisbursementStatus = "failed"
	DisbursementTimedOut  DisbursementStatus = "timeout"
)

// IsTerminal reports whether the status can no longer change.
func (s DisbursementStatus) IsTerminal() bool {
	return s == DisbursementCompleted || s == DisbursementFailed
}

// Disbursement is an outgoing payment instruction created upstream (salary, supplier payment).
type Disbursement struct {
	ID                       int64              `json:"id" db:"id"`
	DisbursementType         DisbursementType   `json:"disbursement_type" db:"disbursement_type"`
	RecipientID              int64              `json:"recipient_id" db:"recipient_id"`
	RecipientName            string             `json:"recipient_name" db:"recipient_name"`
	Amount                   decimal.Decimal    `json:"amount" db:"amount"`
	PhoneNumber              *string            `json:"phone_number,omitempty" db:"phone_number"`
	AccountNumber            *string            `json:"account_number,omitempty" db:"account_number"`
	ContactEmail             *string            `json:"contact_email,omitempty" db:"-"`
	Status                   DisbursementStatus `json:"status" db:"status"`
	ConversationID           *string            `json:"conversation_id,omitempty" db:"conversation_id"`
	OriginatorConversationID *string            `json:"originator_conversation_id,omitempty" db:"originator_conversation_id"`
	RequestID                *string            `json:"request_id,omitempty" db:"request_id"`
	TransactionRef           *string            `json:"transaction_ref,omitempty" db:"transaction_ref"`
	TransactionID            *string            `json:"transaction_id,omitempty" db:"transaction_id"`
	ResultDescription        *string            `json:"result_description,omitempty" db:"result_description"`
	CallbackData             json.RawMessage    `json:"callback_data,omitempty" db:"callback_data"`
	BankCharges              decimal.Decimal    `json:"bank_charges" db:"bank_charges"`
	RetryCount               int                `json:"retry_count" db:"retry_count"`
	Notes                    *string            `json:"notes,omitempty" db:"notes"`
	CompletedAt              *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt                 *time.Time         `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt                time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at" db:"updated_at"`
}

// DisbursementKeys are the gateway references a disbursement may be found by.
// Empty keys are ignored.
type DisbursementKeys struct {
	ConversationID           string
	OriginatorConversationID string
	RequestID                string
	TransactionRef           string
}

func (k DisbursementKeys) IsEmpty() bool {
	return k.ConversationID == "" && k.OriginatorConversationID == "" &&
		k.RequestID == "" && k.TransactionRef == ""
}

// Primary returns the most specific key, used for audit references and logs.
func (k DisbursementKeys) Primary() string {
	switch {
	case k.ConversationID != "":
		return k.ConversationID
	case k.OriginatorConversationID != "":
		return k.OriginatorConversationID
	case k.RequestID != "":
		return k.RequestID
	default:
		return k.TransactionRef
	}
}

// DisbursementCompletion carries what a successful result writes onto the ledger row.
type DisbursementCompletion struct {
	TransactionRef    string
	TransactionID     string
	ResultDescription string
	BankCharges       decimal.Decimal
	CallbackData      json.RawMessage
	CompletedAt       time.Time
}

// DisbursementFailure carries what a failed result (or exhausted timeout) writes.
type DisbursementFailure struct {
	ResultDescription string
	Notes             string
	CallbackData      json.RawMessage
	FailedAt          time.Time
}

// MirrorStatus is the payment status written to the per-purpose mirror tables.
type MirrorStatus string

const (
	MirrorCompleted MirrorStatus = "completed"
	MirrorFailed    MirrorStatus = "failed"
)

// Rail is the payout channel a disbursement was sent over.
type Rail string

const (
	RailMpesa Rail = "mpesa"
	RailBank  Rail = "bank"
)

// MirrorUpdate is applied to staff_payments or supplier_payments alongside the ledger row.
type MirrorUpdate struct {
	Status    MirrorStatus
	Rail      Rail
	Reference string
	Charges   decimal.Decimal
	At        time.Time
	Notes     string
}

// HasMirror reports whether the disbursement type keeps a status mirror.
func (d *Disbursement) HasMirror() bool {
	return d.DisbursementType == DisbursementSalary || d.DisbursementType == DisbursementSupplier
}

// Contact returns the best known recipient contact.
func (d *Disbursement) Contact() Contact {
	c := Contact{Name: d.RecipientName}
	if d.PhoneNumber != nil {
		c.Phone = *d.PhoneNumber
	}
	if d.ContactEmail != nil {
		c.Email = *d.ContactEmail
	}
	return c
}

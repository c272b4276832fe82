// internal/domain/payment.go
package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodMpesa        PaymentMethod = "mpesa"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodBank         PaymentMethod = "bank"
)

type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
)

// IncomingPayment is an immutable ledger entry (payment_transactions).
type IncomingPayment struct {
	ID            int64           `json:"id" db:"id"`
	StudentID     int64           `json:"student_id" db:"student_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	PaymentDate   time.Time       `json:"payment_date" db:"payment_date"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	ReferenceNo   string          `json:"reference_no" db:"reference_no"`
	ReceiptNo     string          `json:"receipt_no" db:"receipt_no"`
	Status        PaymentStatus   `json:"status" db:"status"`
	Notes         string          `json:"notes" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

func (p *IncomingPayment) Validate() error {
	if p.StudentID == 0 {
		return errors.New("student_id is required")
	}
	if p.ReferenceNo == "" {
		return errors.New("reference_no is required")
	}
	if !p.AmountPaid.IsPositive() {
		return errors.New("amount_paid must be greater than zero")
	}
	if p.PaymentMethod == "" {
		return errors.New("payment_method is required")
	}
	return nil
}

// BankTransaction mirrors a bank deposit notification before the canonical payment is written.
type BankTransaction struct {
	ID              int64           `json:"id" db:"id"`
	TransactionRef  string          `json:"transaction_ref" db:"transaction_ref"`
	StudentID       int64           `json:"student_id" db:"student_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"`
	BankName        string          `json:"bank_name" db:"bank_name"`
	AccountNumber   string          `json:"account_number" db:"account_number"`
	Narration       string          `json:"narration" db:"narration"`
	Status          string          `json:"status" db:"status"`
	WebhookData     json.RawMessage `json:"webhook_data" db:"webhook_data"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// MpesaTransaction is the raw paybill record written alongside a C2B confirmation.
type MpesaTransaction struct {
	ID              int64           `json:"id" db:"id"`
	MpesaCode       string          `json:"mpesa_code" db:"mpesa_code"`
	StudentID       int64           `json:"student_id" db:"student_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"`
	PhoneNumber     string          `json:"phone_number" db:"phone_number"`
	Status          string          `json:"status" db:"status"`
	RawCallback     json.RawMessage `json:"raw_callback" db:"raw_callback"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentEnrolled StudentStatus = "enrolled"
)

// Student is the read model used to match collections to a fee account.
type Student struct {
	ID          int64           `json:"id" db:"id"`
	AdmissionNo string          `json:"admission_no" db:"admission_no"`
	FirstName   string          `json:"first_name" db:"first_name"`
	LastName    string          `json:"last_name" db:"last_name"`
	Status      StudentStatus   `json:"status" db:"status"`
	Balance     decimal.Decimal `json:"current_balance" db:"current_balance"`
	ParentPhone string          `json:"parent_phone" db:"parent_phone"`
	ParentEmail string          `json:"parent_email" db:"parent_email"`
}

func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// CanPay reports whether the student account accepts fee payments.
func (s *Student) CanPay() bool {
	return s.Status == StudentActive || s.Status == StudentEnrolled
}

// Contact identifies a notification recipient.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c Contact) IsEmpty() bool {
	return c.Phone == "" && c.Email == ""
}

package domain

// Outcome is the only thing that crosses from the reconciliation engine to a protocol adapter.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeUnmatched        Outcome = "unmatched"
	OutcomeValidated        Outcome = "validated"
	OutcomeRejected         Outcome = "rejected"
	OutcomeNotImplemented   Outcome = "not_implemented"
	OutcomeUnclassified     Outcome = "unclassified"
)

// PaymentPurpose is what a generic bank reference is paying for.
type PaymentPurpose string

const (
	PurposeFeePayment   PaymentPurpose = "fee_payment"
	PurposeAdmission    PaymentPurpose = "admission_fee_payment"
	PurposeTransport    PaymentPurpose = "transport"
	PurposePayroll      PaymentPurpose = "payroll"
	PurposeDepartment   PaymentPurpose = "department"
	PurposeCheque       PaymentPurpose = "cheque"
	PurposeUnclassified PaymentPurpose = ""
)

// IsFee reports whether the purpose is settled against a student fee account.
func (p PaymentPurpose) IsFee() bool {
	return p == PurposeFeePayment || p == PurposeAdmission
}

// Label is the human name used in "not yet implemented" messages.
func (p PaymentPurpose) Label() string {
	switch p {
	case PurposeFeePayment, PurposeAdmission:
		return "Fee"
	case PurposeTransport:
		return "Transport"
	case PurposePayroll:
		return "Payroll"
	case PurposeDepartment:
		return "Department"
	case PurposeCheque:
		return "Cheque"
	default:
		return "Unknown"
	}
}

// RejectReason explains a validation refusal.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectMissingAccount  RejectReason = "missing_account"
	RejectAccountNotFound RejectReason = "account_not_found"
	RejectAccountInactive RejectReason = "account_inactive"
	RejectAmountTooLow    RejectReason = "amount_too_low"
)

// Result is returned by every engine operation alongside an error.
type Result struct {
	Outcome        Outcome
	Purpose        PaymentPurpose
	Reject         RejectReason
	Disbursement   *Disbursement
	Payment        *IncomingPayment
	Student        *Student
	RetryExhausted bool
}

func NewResult(o Outcome) *Result {
	return &Result{Outcome: o}
}

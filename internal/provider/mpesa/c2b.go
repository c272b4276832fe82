// internal/provider/mpesa/c2b.go
package mpesa

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider"

	"github.com/shopspring/decimal"
)

const receiptPrefix = "MPESA-"

func decodeC2B(source domain.AuditSource, payload []byte) (*C2BRequest, error) {
	var req C2BRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.InvalidJSON(source, err)
	}
	return &req, nil
}

func payerName(req *C2BRequest) string {
	var parts []string
	for _, p := range []string{req.FirstName, req.MiddleName, req.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ConfirmationAdapter handles the paybill ConfirmationURL: the customer has
// already paid, the school records it.
type ConfirmationAdapter struct {
	now func() time.Time
}

func NewConfirmationAdapter() *ConfirmationAdapter {
	return &ConfirmationAdapter{now: time.Now}
}

func (a *ConfirmationAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceMpesaC2BConfirmation, FailOpen: false}
}

func (a *ConfirmationAdapter) Parse(payload []byte, headers http.Header) (*domain.Collection, error) {
	source := a.Policy().Source

	req, err := decodeC2B(source, payload)
	if err != nil {
		return nil, err
	}
	if !req.TransAmount.Set {
		return nil, domain.NewParseError(source, "TransAmount", "amount is required")
	}

	name := payerName(req)
	phone := req.MSISDN.String()

	c := &domain.Collection{
		Source:        source,
		Method:        domain.PaymentMethodMpesa,
		Reference:     req.TransID.String(),
		AdmissionNo:   req.BillRefNumber.String(),
		Amount:        req.TransAmount.Value,
		PaidAt:        domain.ParseGatewayTime(req.TransTime.String(), a.now()),
		PayerName:     name,
		PayerPhone:    phone,
		Notes:         fmt.Sprintf("M-Pesa Paybill payment from %s (Phone: %s)", name, phone),
		ReceiptPrefix: receiptPrefix,
		Signature:     provider.Signature(headers),
		Raw:           provider.Compact(payload),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *ConfirmationAdapter) Render(ev *domain.Collection, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		if domain.IsMalformed(err) {
			return provider.Ack{Status: http.StatusBadRequest, Body: CallbackResponse{ResultCode: 1, ResultDesc: "Missing required fields"}}
		}
		return provider.Ack{Status: http.StatusInternalServerError, Body: CallbackResponse{ResultCode: 1, ResultDesc: "Internal server error"}}
	}

	switch res.Outcome {
	case domain.OutcomeApplied:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Confirmation received successfully"})
	case domain.OutcomeAlreadyProcessed:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Payment already processed"})
	case domain.OutcomeUnmatched:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received but student not found"})
	default:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received"})
	}
}

// C2B validation result codes understood by M-Pesa.
const (
	ValidationAccepted       = "0"
	ValidationInvalidAccount = "C2B00011"
	ValidationAccountClosed  = "C2B00012"
	ValidationAmountTooLow   = "C2B00013"
)

// ValidationAdapter handles the paybill ValidationURL, called before the
// customer is debited. Internal failures accept the payment so a school outage
// never blocks fee collection.
type ValidationAdapter struct {
	minAmount decimal.Decimal
}

func NewValidationAdapter(minAmount decimal.Decimal) *ValidationAdapter {
	return &ValidationAdapter{minAmount: minAmount}
}

func (a *ValidationAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceMpesaC2BValidation, FailOpen: true}
}

func (a *ValidationAdapter) Parse(payload []byte, headers http.Header) (*domain.AccountQuery, error) {
	source := a.Policy().Source

	req, err := decodeC2B(source, payload)
	if err != nil {
		return nil, err
	}

	return &domain.AccountQuery{
		Source:      source,
		RequestID:   req.TransID.String(),
		AdmissionNo: req.BillRefNumber.String(),
		Amount:      req.TransAmount.Value,
		Signature:   provider.Signature(headers),
		Raw:         provider.Compact(payload),
	}, nil
}

func (a *ValidationAdapter) Render(q *domain.AccountQuery, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		if domain.IsMalformed(err) {
			return provider.OK(ValidationResponse{
				ResultCode: ValidationInvalidAccount,
				ResultDesc: "Invalid Account. Please enter a valid admission number as account number.",
			})
		}
		return provider.OK(ValidationResponse{
			ResultCode: ValidationAccepted,
			ResultDesc: "Payment accepted. Validation will be completed offline.",
		})
	}

	admissionNo := ""
	if q != nil {
		admissionNo = q.AdmissionNo
	}

	if res.Outcome == domain.OutcomeValidated && res.Student != nil {
		s := res.Student
		return provider.OK(ValidationResponse{
			ResultCode: ValidationAccepted,
			ResultDesc: fmt.Sprintf("Payment accepted for %s (Adm: %s). Current balance: KES %s",
				s.FullName(), s.AdmissionNo, domain.FormatMoney(s.Balance)),
		})
	}

	switch res.Reject {
	case domain.RejectAccountNotFound:
		return provider.OK(ValidationResponse{
			ResultCode: ValidationInvalidAccount,
			ResultDesc: fmt.Sprintf("Admission number %s not found. Please verify and try again.", admissionNo),
		})
	case domain.RejectAccountInactive:
		status := "inactive"
		if res.Student != nil && res.Student.Status != "" {
			status = string(res.Student.Status)
		}
		return provider.OK(ValidationResponse{
			ResultCode: ValidationAccountClosed,
			ResultDesc: fmt.Sprintf("Student account %s is %s. Please contact school administration.", admissionNo, status),
		})
	case domain.RejectAmountTooLow:
		min := domain.FormatMoney(a.minAmount)
		return provider.OK(ValidationResponse{
			ResultCode: ValidationAmountTooLow,
			ResultDesc: fmt.Sprintf("Minimum payment amount is KES %s. Please pay at least KES %s.", min, min),
		})
	default:
		return provider.OK(ValidationResponse{
			ResultCode: ValidationInvalidAccount,
			ResultDesc: "Invalid Account. Please enter a valid admission number as account number.",
		})
	}
}

// internal/provider/kcb/adapters.go
package kcb

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider"
)

// ValidationAdapter answers KCB bill-validation lookups. It always answers 200;
// refusals and errors are carried in statusCode.
type ValidationAdapter struct {
	creditAccount string
}

func NewValidationAdapter(creditAccount string) *ValidationAdapter {
	return &ValidationAdapter{creditAccount: creditAccount}
}

func (a *ValidationAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceKCBValidation, FailOpen: true}
}

func (a *ValidationAdapter) Parse(payload []byte, headers http.Header) (*domain.AccountQuery, error) {
	source := a.Policy().Source

	var req ValidationRequest
	if err := decode(source, payload, &req); err != nil {
		return nil, err
	}
	if req.CustomerReference == "" {
		return nil, domain.NewParseError(source, "customerReference", "admission number is required")
	}

	return &domain.AccountQuery{
		Source:      source,
		RequestID:   req.RequestID.String(),
		AdmissionNo: req.CustomerReference.String(),
		Signature:   provider.Signature(headers),
		Raw:         provider.Compact(payload),
	}, nil
}

func (a *ValidationAdapter) refusal(requestID, msg string) provider.Ack {
	return provider.OK(ValidationResponse{
		TransactionID: requestID,
		StatusCode:    StatusError,
		StatusMessage: msg,
		BillAmount:    "0.00",
		Currency:      "KES",
		BillType:      "PARTIAL",
	})
}

func (a *ValidationAdapter) Render(q *domain.AccountQuery, res *domain.Result, err error) provider.Ack {
	requestID, admissionNo := "", ""
	if q != nil {
		requestID, admissionNo = q.RequestID, q.AdmissionNo
	}

	if err != nil || res == nil {
		if domain.IsMalformed(err) {
			return a.refusal(requestID, "Customer reference (admission number) is required")
		}
		return a.refusal(requestID, "System error. Please try again later.")
	}

	if res.Outcome == domain.OutcomeValidated && res.Student != nil {
		s := res.Student
		return provider.OK(ValidationResponse{
			TransactionID:           requestID,
			StatusCode:              StatusOK,
			StatusMessage:           "Success",
			CustomerName:            s.FullName(),
			BillAmount:              domain.FormatKES(s.Balance),
			Currency:                "KES",
			BillType:                "PARTIAL",
			CreditAccountIdentifier: a.creditAccount,
		})
	}

	switch res.Reject {
	case domain.RejectAccountInactive:
		status := "inactive"
		if res.Student != nil && res.Student.Status != "" {
			status = string(res.Student.Status)
		}
		return a.refusal(requestID, fmt.Sprintf("Student account %s is %s. Please contact school administration.", admissionNo, status))
	case domain.RejectMissingAccount:
		return a.refusal(requestID, "Customer reference (admission number) is required")
	default:
		return a.refusal(requestID, fmt.Sprintf("Admission number %s not found. Please verify and try again.", admissionNo))
	}
}

// NotificationAdapter records payments made into the school KCB account. KCB is
// always acknowledged; failures are recovered offline from the audit trail.
type NotificationAdapter struct {
	now func() time.Time
}

func NewNotificationAdapter() *NotificationAdapter {
	return &NotificationAdapter{now: time.Now}
}

func (a *NotificationAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceKCBNotification, FailOpen: true}
}

func (a *NotificationAdapter) Parse(payload []byte, headers http.Header) (*domain.Collection, error) {
	source := a.Policy().Source

	var req NotificationRequest
	if err := decode(source, payload, &req); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.CustomerName)
	mobile := req.CustomerMobileNumber.String()

	c := &domain.Collection{
		Source:        source,
		Method:        domain.PaymentMethodBankTransfer,
		Reference:     req.TransactionReference.String(),
		RequestID:     req.RequestID.String(),
		AdmissionNo:   req.CustomerReference.String(),
		Amount:        req.TransactionAmount.Value,
		PaidAt:        domain.ParseGatewayTime(req.Timestamp.String(), a.now()),
		PayerName:     name,
		PayerPhone:    mobile,
		Narration:     req.Narration,
		Notes:         strings.TrimSpace(fmt.Sprintf("KCB Bank payment from %s (Mobile: %s). %s", name, mobile, req.Narration)),
		BankName:      BankName,
		AccountNumber: req.CreditAccountIdentifier.String(),
		ReceiptPrefix: receiptPrefix,
		Signature:     provider.Signature(headers),
		Raw:           provider.Compact(payload),
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (a *NotificationAdapter) Render(ev *domain.Collection, res *domain.Result, err error) provider.Ack {
	requestID := "UNKNOWN"
	if ev != nil && ev.RequestID != "" {
		requestID = ev.RequestID
	}

	msg := "Received. Processing offline."
	if err == nil && res != nil {
		switch res.Outcome {
		case domain.OutcomeApplied:
			msg = "Notification received successfully"
		case domain.OutcomeAlreadyProcessed:
			msg = "Notification received successfully (already processed)"
		}
	}
	return provider.OK(StatusResponse{TransactionID: requestID, StatusCode: StatusOK, StatusMessage: msg})
}

// TransferAdapter handles the result of a bank transfer disbursement. Unlike the
// notification callback it is fail-closed so KCB retries on our errors.
type TransferAdapter struct{}

func NewTransferAdapter() *TransferAdapter {
	return &TransferAdapter{}
}

func (a *TransferAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceKCBTransfer, FailOpen: false}
}

func (a *TransferAdapter) Parse(payload []byte, headers http.Header) (*domain.DisbursementResult, error) {
	source := a.Policy().Source

	var req TransferRequest
	if err := decode(source, payload, &req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		return nil, domain.NewParseError(source, "requestId", "request id is required")
	}
	if !req.TransactionAmount.Set || !req.TransactionAmount.Value.IsPositive() {
		return nil, domain.NewParseError(source, "transactionAmount", "amount must be greater than zero")
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	desc := req.StatusDescription
	if desc == "" {
		desc = status
	}
	code := StatusError
	if status == "SUCCESS" {
		code = StatusOK
	}

	return &domain.DisbursementResult{
		Source: source,
		Keys: domain.DisbursementKeys{
			RequestID:      req.RequestID.String(),
			TransactionRef: req.TransactionReference.String(),
		},
		Success:       status == "SUCCESS",
		ResultCode:    code,
		ResultDesc:    desc,
		TransactionID: req.TransactionReference.String(),
		Receipt:       req.TransactionReference.String(),
		Amount:        req.TransactionAmount.Value,
		Charges:       req.Charges.Value,
		RecipientName: req.CreditAccountName,
		Signature:     provider.Signature(headers),
		Raw:           provider.Compact(payload),
	}, nil
}

func (a *TransferAdapter) Render(ev *domain.DisbursementResult, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		switch {
		case isInvalidJSON(err):
			return provider.Ack{Status: http.StatusBadRequest, Body: StatusResponse{StatusCode: StatusError, StatusMessage: "Invalid JSON data"}}
		case domain.IsMalformed(err):
			return provider.Ack{Status: http.StatusBadRequest, Body: StatusResponse{StatusCode: StatusError, StatusMessage: "Missing required fields"}}
		default:
			return provider.Ack{Status: http.StatusInternalServerError, Body: StatusResponse{StatusCode: StatusError, StatusMessage: "Internal server error"}}
		}
	}

	requestID := ""
	if ev != nil {
		requestID = ev.Keys.RequestID
	}

	switch res.Outcome {
	case domain.OutcomeApplied:
		id := requestID
		if res.Disbursement != nil {
			id = strconv.FormatInt(res.Disbursement.ID, 10)
		}
		return provider.OK(StatusResponse{TransactionID: id, StatusCode: StatusOK, StatusMessage: "Transfer notification processed successfully"})
	case domain.OutcomeAlreadyProcessed:
		return provider.OK(StatusResponse{TransactionID: requestID, StatusCode: StatusOK, StatusMessage: "Transfer notification already processed"})
	case domain.OutcomeUnmatched:
		return provider.OK(StatusResponse{TransactionID: requestID, StatusCode: StatusOK, StatusMessage: "Received but transaction not found"})
	default:
		return provider.OK(StatusResponse{TransactionID: requestID, StatusCode: StatusOK, StatusMessage: "Received"})
	}
}

// internal/provider/kcb/kcb.go
package kcb

import (
	"encoding/json"
	"errors"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

// BankName is recorded on bank_transactions rows written for KCB collections.
const BankName = "KCB Bank"

const receiptPrefix = "KCB-"

// KCB status codes. '0' acknowledges, '1' refuses or signals an error.
const (
	StatusOK    = "0"
	StatusError = "1"
)

// ValidationRequest is the Buni bill-validation request.
type ValidationRequest struct {
	RequestID             domain.FlexString `json:"requestId"`
	CustomerReference     domain.FlexString `json:"customerReference"`
	OrganizationReference domain.FlexString `json:"organizationReference"`
}

// ValidationResponse answers a bill-validation request with the account holder and balance.
type ValidationResponse struct {
	TransactionID           string `json:"transactionID"`
	StatusCode              string `json:"statusCode"`
	StatusMessage           string `json:"statusMessage"`
	CustomerName            string `json:"CustomerName"`
	BillAmount              string `json:"billAmount"`
	Currency                string `json:"currency"`
	BillType                string `json:"billType"`
	CreditAccountIdentifier string `json:"creditAccountIdentifier,omitempty"`
}

// NotificationRequest is posted when a payer pays into the school collection account.
type NotificationRequest struct {
	TransactionReference    domain.FlexString `json:"transactionReference"`
	RequestID               domain.FlexString `json:"requestId"`
	ChannelCode             domain.FlexString `json:"channelCode"`
	Timestamp               domain.FlexString `json:"timestamp"`
	TransactionAmount       domain.FlexAmount `json:"transactionAmount"`
	Currency                string            `json:"currency"`
	CustomerReference       domain.FlexString `json:"customerReference"`
	CustomerName            string            `json:"customerName"`
	CustomerMobileNumber    domain.FlexString `json:"customerMobileNumber"`
	Balance                 domain.FlexAmount `json:"balance"`
	Narration               string            `json:"narration"`
	CreditAccountIdentifier domain.FlexString `json:"creditAccountIdentifier"`
	OrganizationShortCode   domain.FlexString `json:"organizationShortCode"`
	TillNumber              domain.FlexString `json:"tillNumber"`
}

// TransferRequest is the outcome of a funds transfer the school initiated.
type TransferRequest struct {
	TransactionReference domain.FlexString `json:"transactionReference"`
	RequestID            domain.FlexString `json:"requestId"`
	TransactionAmount    domain.FlexAmount `json:"transactionAmount"`
	Status               string            `json:"status"`
	StatusDescription    string            `json:"statusDescription"`
	CreditAccountNumber  domain.FlexString `json:"creditAccountNumber"`
	CreditAccountName    string            `json:"creditAccountName"`
	DebitAccountNumber   domain.FlexString `json:"debitAccountNumber"`
	Charges              domain.FlexAmount `json:"charges"`
	Narration            string            `json:"narration"`
	Timestamp            domain.FlexString `json:"timestamp"`
}

// StatusResponse acknowledges notification and transfer callbacks.
type StatusResponse struct {
	TransactionID string `json:"transactionID,omitempty"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

func decode(source domain.AuditSource, payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.InvalidJSON(source, err)
	}
	return nil
}

func isInvalidJSON(err error) bool {
	return errors.Is(err, domain.ErrInvalidJSON)
}

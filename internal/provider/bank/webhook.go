// internal/provider/bank/webhook.go
package bank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/accountref"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider"
)

// Response is the acknowledgement for the generic bank webhook.
type Response struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PaymentData is returned to the bank for an applied fee payment.
type PaymentData struct {
	PaymentID       int64  `json:"payment_id"`
	Student         string `json:"student"`
	AdmissionNumber string `json:"admission_number"`
	Amount          string `json:"amount"`
	TransactionRef  string `json:"transaction_ref"`
}

// WebhookAdapter accepts notifications from banks with no dedicated integration.
// Field names vary per bank, so every field is looked up through an alias list.
type WebhookAdapter struct {
	now func() time.Time
}

func NewWebhookAdapter() *WebhookAdapter {
	return &WebhookAdapter{now: time.Now}
}

func (a *WebhookAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceBankWebhook, FailOpen: false}
}

func (a *WebhookAdapter) Parse(payload []byte, headers http.Header) (*domain.BankWebhook, error) {
	source := a.Policy().Source

	fields := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, domain.InvalidJSON(source, err)
	}
	if len(fields) == 0 {
		return nil, domain.InvalidJSON(source, errors.New("empty object"))
	}

	amount, _, err := accountref.FirstAmount(fields, accountref.AmountAliases)
	if err != nil {
		return nil, &domain.ParseError{Source: source, Field: "amount", Err: err}
	}

	accountRef, _ := accountref.FirstString(fields, accountref.AccountRefAliases)
	txRef, _ := accountref.FirstString(fields, accountref.TransactionRefAliases)
	date, _ := accountref.FirstString(fields, accountref.DateAliases)
	narration, _ := accountref.FirstString(fields, accountref.NarrationAliases)
	payer, _ := accountref.FirstString(fields, accountref.PayerNameAliases)
	sender, _ := accountref.FirstString(fields, accountref.SenderAccountAliases)

	return &domain.BankWebhook{
		AccountRef:      accountRef,
		Narration:       narration,
		TransactionRef:  txRef,
		Amount:          amount,
		TransactionDate: domain.ParseGatewayTime(date, a.now()),
		BankName:        accountref.BankName(headers, fields),
		PayerName:       payer,
		SenderAccount:   sender,
		Signature:       provider.Signature(headers),
		Raw:             provider.Compact(payload),
	}, nil
}

func fail(status int, msg string) provider.Ack {
	return provider.Ack{Status: status, Body: Response{Status: false, Message: msg}}
}

func (a *WebhookAdapter) Render(ev *domain.BankWebhook, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		switch {
		case errors.Is(err, domain.ErrInvalidJSON):
			return fail(http.StatusBadRequest, "Invalid JSON data")
		case domain.IsMalformed(err):
			return fail(http.StatusBadRequest, "Invalid payment data format")
		default:
			return fail(http.StatusInternalServerError, "Internal server error")
		}
	}

	switch res.Outcome {
	case domain.OutcomeApplied:
		return provider.OK(Response{Status: true, Message: "Payment processed successfully", Data: paymentData(ev, res)})
	case domain.OutcomeAlreadyProcessed:
		return provider.OK(Response{Status: true, Message: "Payment already processed"})
	case domain.OutcomeUnmatched:
		return provider.OK(Response{Status: true, Message: "Received but account not found. Queued for manual reconciliation."})
	case domain.OutcomeNotImplemented:
		return provider.OK(Response{Status: false, Message: fmt.Sprintf("%s payment processing not yet implemented.", res.Purpose.Label())})
	default:
		return provider.OK(Response{Status: false, Message: "Unknown or unsupported payment type."})
	}
}

func paymentData(ev *domain.BankWebhook, res *domain.Result) *PaymentData {
	d := &PaymentData{}
	if ev != nil {
		d.TransactionRef = ev.TransactionRef
		d.AdmissionNumber = strings.ToUpper(ev.AccountRef)
		d.Amount = domain.FormatKES(ev.Amount)
	}
	if res.Payment != nil {
		d.PaymentID = res.Payment.ID
	}
	if res.Student != nil {
		d.Student = res.Student.FullName()
		d.AdmissionNumber = res.Student.AdmissionNo
	}
	return d
}

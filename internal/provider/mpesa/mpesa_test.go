package mpesa

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/shopspring/decimal"
)

const b2cSuccess = `{
  "Result": {
    "ResultType": 0,
    "ResultCode": 0,
    "ResultDesc": "The service request is processed successfully.",
    "OriginatorConversationID": "10571-7910404-1",
    "ConversationID": "AG_20191219_00004e48cf7e3533f581",
    "TransactionID": "NLJ41HAY6Q",
    "ResultParameters": {
      "ResultParameter": [
        {"Key": "TransactionAmount", "Value": 10},
        {"Key": "TransactionReceipt", "Value": "NLJ41HAY6Q"},
        {"Key": "ReceiverPartyPublicName", "Value": "254708374149 - John Doe"}
      ]
    }
  }
}`

func TestB2CResultAdapterParse(t *testing.T) {
	a := NewB2CResultAdapter()
	h := http.Header{}
	h.Set("X-Signature", "sig")

	ev, err := a.Parse([]byte(b2cSuccess), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.Success {
		t.Fatalf("expected success result")
	}
	if ev.Keys.ConversationID != "AG_20191219_00004e48cf7e3533f581" {
		t.Fatalf("expected conversation id, got %q", ev.Keys.ConversationID)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected amount 10, got %s", ev.Amount)
	}
	if ev.LedgerReference() != "NLJ41HAY6Q" {
		t.Fatalf("expected receipt NLJ41HAY6Q, got %s", ev.LedgerReference())
	}
	if ev.RecipientName != "254708374149 - John Doe" {
		t.Fatalf("expected recipient name, got %q", ev.RecipientName)
	}
	if ev.Signature != "sig" {
		t.Fatalf("expected signature to be captured, got %q", ev.Signature)
	}
}

func TestB2CResultAdapterParseFailureDefaults(t *testing.T) {
	payload := `{"Result":{"ResultCode":"2001","ConversationID":"AG_1","ResultParameters":{"ResultParameter":{"Key":"TransactionAmount","Value":"500"}}}}`

	ev, err := NewB2CResultAdapter().Parse([]byte(payload), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Success {
		t.Fatalf("expected failed result")
	}
	if ev.ResultCode != "2001" {
		t.Fatalf("expected code 2001, got %s", ev.ResultCode)
	}
	if ev.ResultDesc != "Unknown error" {
		t.Fatalf("expected default description, got %q", ev.ResultDesc)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected single-pair amount 500, got %s", ev.Amount)
	}
}

func TestB2CResultAdapterParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `not json`},
		{name: "missing result", payload: `{"foo":1}`},
		{name: "missing conversation", payload: `{"Result":{"ResultCode":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewB2CResultAdapter().Parse([]byte(tt.payload), nil)
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Fatalf("expected malformed payload error, got %v", err)
			}
		})
	}
}

func TestAdaptersFlagUndecodableBodies(t *testing.T) {
	parsers := map[string]func([]byte) error{
		"b2c result": func(b []byte) error { _, err := NewB2CResultAdapter().Parse(b, nil); return err },
		"c2b confirmation": func(b []byte) error {
			_, err := NewConfirmationAdapter().Parse(b, nil)
			return err
		},
		"c2b validation": func(b []byte) error {
			_, err := NewValidationAdapter(decimal.NewFromInt(100)).Parse(b, nil)
			return err
		},
	}

	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			err := parse([]byte(`{"TransID":`))
			if !errors.Is(err, domain.ErrInvalidJSON) {
				t.Fatalf("expected ErrInvalidJSON, got %v", err)
			}
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Fatalf("expected invalid JSON to count as malformed, got %v", err)
			}
		})
	}
}

func TestB2CResultAdapterRender(t *testing.T) {
	a := NewB2CResultAdapter()

	tests := []struct {
		name       string
		res        *domain.Result
		err        error
		wantStatus int
		wantCode   int
		wantDesc   string
	}{
		{name: "applied", res: domain.NewResult(domain.OutcomeApplied), wantStatus: 200, wantCode: 0, wantDesc: "B2C callback processed successfully"},
		{name: "duplicate", res: domain.NewResult(domain.OutcomeAlreadyProcessed), wantStatus: 200, wantCode: 0, wantDesc: "B2C callback already processed"},
		{name: "unmatched", res: domain.NewResult(domain.OutcomeUnmatched), wantStatus: 200, wantCode: 0, wantDesc: "Received but transaction not found"},
		{name: "malformed", err: domain.Malformed("parse", domain.NewParseError(domain.SourceMpesaB2CResult, "Result", "missing")), wantStatus: 400, wantCode: 1, wantDesc: "Invalid B2C result data"},
		{name: "internal", err: domain.Transactional("apply", errors.New("db down")), wantStatus: 500, wantCode: 1, wantDesc: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := a.Render(nil, tt.res, tt.err)
			if ack.Status != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, ack.Status)
			}
			body, ok := ack.Body.(CallbackResponse)
			if !ok {
				t.Fatalf("expected CallbackResponse, got %T", ack.Body)
			}
			if body.ResultCode != tt.wantCode || body.ResultDesc != tt.wantDesc {
				t.Fatalf("expected {%d %q}, got {%d %q}", tt.wantCode, tt.wantDesc, body.ResultCode, body.ResultDesc)
			}
		})
	}
}

func TestTimeoutAdapterAlwaysAcknowledges(t *testing.T) {
	a := NewTimeoutAdapter()

	ack := a.Render(nil, nil, domain.Transactional("apply", errors.New("db down")))
	if ack.Status != 200 {
		t.Fatalf("expected 200, got %d", ack.Status)
	}
	if body := ack.Body.(CallbackResponse); body.ResultCode != 0 || body.ResultDesc != "Received" {
		t.Fatalf("expected {0 Received}, got %+v", body)
	}

	ack = a.Render(nil, domain.NewResult(domain.OutcomeApplied), nil)
	if body := ack.Body.(CallbackResponse); body.ResultDesc != "Timeout processed successfully" {
		t.Fatalf("expected timeout processed, got %q", body.ResultDesc)
	}
}

func TestConfirmationAdapterParse(t *testing.T) {
	payload := `{"TransactionType":"Pay Bill","TransID":"RKTQDM7W6S","TransTime":"20240315143000","TransAmount":"1500.00","BusinessShortCode":"600638","BillRefNumber":"ADM001","MSISDN":254708374149,"FirstName":"Jane","MiddleName":"","LastName":"Doe"}`

	ev, err := NewConfirmationAdapter().Parse([]byte(payload), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Reference != "RKTQDM7W6S" || ev.AdmissionNo != "ADM001" {
		t.Fatalf("unexpected keys: %+v", ev)
	}
	if ev.ReceiptNo() != "MPESA-RKTQDM7W6S" {
		t.Fatalf("expected MPESA-RKTQDM7W6S, got %s", ev.ReceiptNo())
	}
	if ev.PayerName != "Jane Doe" {
		t.Fatalf("expected Jane Doe, got %q", ev.PayerName)
	}
	if ev.PayerPhone != "254708374149" {
		t.Fatalf("expected phone from numeric MSISDN, got %q", ev.PayerPhone)
	}
	if !ev.RecordsMpesaTransaction() {
		t.Fatalf("expected mpesa raw row to be recorded")
	}
}

func TestConfirmationAdapterRejectsMissingFields(t *testing.T) {
	tests := []string{
		`{"TransID":"X1","BillRefNumber":"ADM001"}`,
		`{"TransID":"X1","TransAmount":"100"}`,
		`{"BillRefNumber":"ADM001","TransAmount":"100"}`,
		`{"TransID":"X1","BillRefNumber":"ADM001","TransAmount":"0"}`,
	}
	for _, payload := range tests {
		if _, err := NewConfirmationAdapter().Parse([]byte(payload), nil); !domain.IsMalformed(err) {
			t.Fatalf("expected malformed for %s, got %v", payload, err)
		}
	}
}

func TestValidationAdapterRender(t *testing.T) {
	a := NewValidationAdapter(decimal.NewFromInt(100))
	q := &domain.AccountQuery{AdmissionNo: "ADM001"}

	accepted := domain.NewResult(domain.OutcomeValidated)
	accepted.Student = &domain.Student{AdmissionNo: "ADM001", FirstName: "Jane", LastName: "Doe", Balance: decimal.NewFromInt(15000)}

	inactive := domain.NewResult(domain.OutcomeRejected)
	inactive.Reject = domain.RejectAccountInactive
	inactive.Student = &domain.Student{AdmissionNo: "ADM001", Status: "suspended"}

	notFound := domain.NewResult(domain.OutcomeRejected)
	notFound.Reject = domain.RejectAccountNotFound

	tooLow := domain.NewResult(domain.OutcomeRejected)
	tooLow.Reject = domain.RejectAmountTooLow

	tests := []struct {
		name     string
		res      *domain.Result
		err      error
		wantCode string
		wantDesc string
	}{
		{name: "accepted", res: accepted, wantCode: "0", wantDesc: "Payment accepted for Jane Doe (Adm: ADM001). Current balance: KES 15,000.00"},
		{name: "not found", res: notFound, wantCode: ValidationInvalidAccount, wantDesc: "Admission number ADM001 not found. Please verify and try again."},
		{name: "inactive", res: inactive, wantCode: ValidationAccountClosed, wantDesc: "Student account ADM001 is suspended. Please contact school administration."},
		{name: "too low", res: tooLow, wantCode: ValidationAmountTooLow, wantDesc: "Minimum payment amount is KES 100.00. Please pay at least KES 100.00."},
		{name: "internal error accepts", err: errors.New("db down"), wantCode: "0", wantDesc: "Payment accepted. Validation will be completed offline."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := a.Render(q, tt.res, tt.err)
			if ack.Status != 200 {
				t.Fatalf("expected 200, got %d", ack.Status)
			}
			body := ack.Body.(ValidationResponse)
			if body.ResultCode != tt.wantCode || body.ResultDesc != tt.wantDesc {
				t.Fatalf("expected {%s %q}, got {%s %q}", tt.wantCode, tt.wantDesc, body.ResultCode, body.ResultDesc)
			}
		})
	}
}

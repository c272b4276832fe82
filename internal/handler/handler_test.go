package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testServer struct {
	store    *repository.MemoryStore
	uc       *usecase.ReconcileUsecase
	callback *CallbackHandler
	bank     *BankHandler
	audit    *AuditHandler
}

func newTestServer(t *testing.T, store repository.LedgerStore, mem *repository.MemoryStore) *testServer {
	t.Helper()
	logger := zap.NewNop()
	uc := usecase.NewReconcileUsecase(store, nil, nil, nil, usecase.Config{
		MinPaybillAmount: decimal.NewFromInt(100),
	}, nil, logger)
	t.Cleanup(uc.Wait)
	return &testServer{
		store:    mem,
		uc:       uc,
		callback: NewCallbackHandler(uc, decimal.NewFromInt(100), logger),
		bank:     NewBankHandler(uc, "1122334455", logger),
		audit:    NewAuditHandler(uc, "secret", logger),
	}
}

func newMemoryServer(t *testing.T) *testServer {
	store := repository.NewMemoryStore()
	return newTestServer(t, store, store)
}

type downStore struct {
	*repository.MemoryStore
}

func (downStore) FindStudentByAdmission(ctx context.Context, admissionNo string) (*domain.Student, error) {
	return nil, errors.New("too many connections")
}

func post(t *testing.T, h http.HandlerFunc, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", "sig-abc")
	rec := httptest.NewRecorder()
	h(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec.Code, out
}

func ptr(s string) *string { return &s }

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

func TestB2CResult_AppliedThenDuplicate(t *testing.T) {
	s := newMemoryServer(t)
	d := s.store.SeedDisbursement(domain.Disbursement{
		DisbursementType: domain.DisbursementSalary,
		RecipientName:    "John Doe",
		Amount:           decimal.NewFromInt(10),
		ConversationID:   ptr("AG_20191219_00004e48cf7e3533f581"),
	})

	code, body := post(t, s.callback.HandleB2CResult, b2cSuccess)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["ResultCode"] != float64(0) || body["ResultDesc"] != "B2C callback processed successfully" {
		t.Fatalf("unexpected body %v", body)
	}

	s.uc.Wait()
	got, _ := s.store.Disbursement(d.ID)
	if got.Status != domain.DisbursementCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	mirror, _ := s.store.Mirror(d.ID)
	if mirror.Status != "completed" || mirror.MpesaReceipt != "NLJ41HAY6Q" {
		t.Fatalf("unexpected mirror %+v", mirror)
	}

	code, body = post(t, s.callback.HandleB2CResult, b2cSuccess)
	if code != http.StatusOK || body["ResultCode"] != float64(0) {
		t.Fatalf("expected duplicate acknowledged with 0, got %d %v", code, body)
	}
	if body["ResultDesc"] != "B2C callback already processed" {
		t.Fatalf("unexpected duplicate message %v", body["ResultDesc"])
	}

	again, _ := s.store.Disbursement(d.ID)
	if !again.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatal("duplicate delivery mutated the disbursement")
	}
}

func TestB2CResult_Malformed(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.callback.HandleB2CResult, `{"Result": {"ResultCode": 0}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body["ResultCode"] != float64(1) || body["ResultDesc"] != "Invalid B2C result data" {
		t.Fatalf("unexpected body %v", body)
	}

	entries := s.store.AuditEntries()
	if len(entries) != 1 || entries[0].Status != domain.AuditRejected {
		t.Fatalf("expected one rejected audit row, got %+v", entries)
	}
	if entries[0].Signature != "sig-abc" {
		t.Fatalf("expected signature captured, got %q", entries[0].Signature)
	}
}

func TestB2CResult_UnknownConversation(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.callback.HandleB2CResult, b2cSuccess)
	if code != http.StatusOK || body["ResultDesc"] != "Received but transaction not found" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	entries := s.store.AuditEntries()
	if len(entries) != 1 || entries[0].Status != domain.AuditUnknown {
		t.Fatalf("expected exactly one unknown audit row, got %+v", entries)
	}
}

func TestB2CTimeout_FailOpen(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.callback.HandleB2CTimeout, `not json`)
	if code != http.StatusOK || body["ResultCode"] != float64(0) {
		t.Fatalf("expected fail-open acknowledgement, got %d %v", code, body)
	}
}

func TestC2BConfirmation(t *testing.T) {
	s := newMemoryServer(t)
	st := s.store.SeedStudent(domain.Student{
		AdmissionNo: "ADM007",
		FirstName:   "Mary",
		LastName:    "Akinyi",
		Balance:     decimal.NewFromInt(30000),
	})

	payload := `{
	  "TransactionType": "Pay Bill",
	  "TransID": "ABC123",
	  "TransTime": "20240115103000",
	  "TransAmount": "1500.00",
	  "BusinessShortCode": "600638",
	  "BillRefNumber": "ADM007",
	  "MSISDN": "254708374149",
	  "FirstName": "John",
	  "LastName": "Doe"
	}`

	code, body := post(t, s.callback.HandleC2BConfirmation, payload)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["ResultCode"] != float64(0) || body["ResultDesc"] != "Confirmation received successfully" {
		t.Fatalf("unexpected body %v", body)
	}

	payments := s.store.Payments()
	if len(payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(payments))
	}
	if payments[0].ReferenceNo != "ABC123" || payments[0].ReceiptNo != "MPESA-ABC123" {
		t.Fatalf("unexpected payment %+v", payments[0])
	}
	got, _ := s.store.Student(st.ID)
	if !got.Balance.Equal(decimal.NewFromInt(28500)) {
		t.Fatalf("expected balance 28500, got %s", got.Balance)
	}

	_, body = post(t, s.callback.HandleC2BConfirmation, payload)
	if body["ResultDesc"] != "Payment already processed" {
		t.Fatalf("expected duplicate message, got %v", body["ResultDesc"])
	}
	if len(s.store.Payments()) != 1 {
		t.Fatal("duplicate confirmation wrote a second payment")
	}
}

func TestC2BConfirmation_MissingFields(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.callback.HandleC2BConfirmation, `{"TransID": "X1", "TransAmount": 100}`)
	if code != http.StatusBadRequest || body["ResultDesc"] != "Missing required fields" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}

func TestC2BConfirmation_UnstorableTextIsCleaned(t *testing.T) {
	s := newMemoryServer(t)
	s.store.SeedStudent(domain.Student{AdmissionNo: "ADM008", FirstName: "Otieno", Balance: decimal.NewFromInt(5000)})

	payload := "{\"TransID\":\"NUL001\",\"TransAmount\":\"700\",\"BillRefNumber\":\"ADM008\"," +
		"\"FirstName\":\"J\xffohn\",\"LastName\":\"D\\u0000oe\"}"

	code, body := post(t, s.callback.HandleC2BConfirmation, payload)
	if code != http.StatusOK || body["ResultDesc"] != "Confirmation received successfully" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if len(s.store.Payments()) != 1 {
		t.Fatalf("expected one payment, got %d", len(s.store.Payments()))
	}

	entries := s.store.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(entries))
	}
	raw := string(entries[0].WebhookData)
	if !utf8.ValidString(raw) || strings.Contains(raw, `\u0000`) {
		t.Fatalf("audit payload not storable: %q", raw)
	}
	if !strings.Contains(raw, "Doe") {
		t.Fatalf("expected payload content to survive, got %s", raw)
	}
}

func TestC2BValidation(t *testing.T) {
	s := newMemoryServer(t)
	s.store.SeedStudent(domain.Student{AdmissionNo: "ADM300", FirstName: "Ken", Balance: decimal.NewFromInt(4500)})

	code, body := post(t, s.callback.HandleC2BValidation, `{"TransID":"V1","TransAmount":"500","BillRefNumber":"ADM300"}`)
	if code != http.StatusOK || body["ResultCode"] != "0" {
		t.Fatalf("expected acceptance, got %d %v", code, body)
	}

	_, body = post(t, s.callback.HandleC2BValidation, `{"TransID":"V2","TransAmount":"500","BillRefNumber":"ADM999"}`)
	if body["ResultCode"] != "C2B00011" {
		t.Fatalf("expected C2B00011, got %v", body["ResultCode"])
	}

	_, body = post(t, s.callback.HandleC2BValidation, `{"TransID":"V3","TransAmount":"50","BillRefNumber":"ADM300"}`)
	if body["ResultCode"] != "C2B00013" {
		t.Fatalf("expected C2B00013, got %v", body["ResultCode"])
	}
}

func TestKCBValidation_NotFound(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.bank.HandleKCBValidation, `{"requestId":"REQ-1","customerReference":"ADM404","organizationReference":"1122334455"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["statusCode"] != "1" {
		t.Fatalf("expected statusCode 1, got %v", body["statusCode"])
	}
	if body["statusMessage"] != "Admission number ADM404 not found. Please verify and try again." {
		t.Fatalf("unexpected message %v", body["statusMessage"])
	}
	if body["CustomerName"] != "" || body["billAmount"] != "0.00" {
		t.Fatalf("expected empty customer and 0.00, got %v / %v", body["CustomerName"], body["billAmount"])
	}
	if n := len(s.store.AuditEntries()); n != 0 {
		t.Fatalf("expected no audit rows for a validation refusal, got %d", n)
	}
}

func TestKCBNotification_StoreDownStillAcknowledged(t *testing.T) {
	mem := repository.NewMemoryStore()
	s := newTestServer(t, downStore{mem}, mem)

	payload := `{"transactionReference":"FT24001","requestId":"REQ-77","transactionAmount":"2500","customerReference":"ADM001","customerName":"Peter","customerMobileNumber":"254711000000","timestamp":"20240115103000"}`

	code, body := post(t, s.bank.HandleKCBNotification, payload)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["statusCode"] != "0" || body["statusMessage"] != "Received. Processing offline." {
		t.Fatalf("unexpected body %v", body)
	}
	if body["transactionID"] != "REQ-77" {
		t.Fatalf("expected requestId echoed, got %v", body["transactionID"])
	}

	entries := mem.AuditEntries()
	if len(entries) != 1 || entries[0].Status != domain.AuditOffline {
		t.Fatalf("expected one offline audit row, got %+v", entries)
	}
}

func TestKCBTransfer_InvalidJSON(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.bank.HandleKCBTransfer, `{"requestId":`)
	if code != http.StatusBadRequest || body["statusCode"] != "1" || body["statusMessage"] != "Invalid JSON data" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}

func TestBankWebhook_TransportNotImplemented(t *testing.T) {
	s := newMemoryServer(t)

	code, body := post(t, s.bank.HandleBankWebhook, `{"account_ref":"TRP045","transaction_ref":"EQ-1","amount":"500"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != false || body["message"] != "Transport payment processing not yet implemented." {
		t.Fatalf("unexpected body %v", body)
	}
	if len(s.store.Payments()) != 0 || len(s.store.BankTransactions()) != 0 {
		t.Fatal("expected no ledger write")
	}
}

func TestBankWebhook_FeePayment(t *testing.T) {
	s := newMemoryServer(t)
	s.store.SeedStudent(domain.Student{AdmissionNo: "ADM555", FirstName: "Aisha", Balance: decimal.NewFromInt(9000)})

	code, body := post(t, s.bank.HandleBankWebhook, `{"account_number":"ADM555","transaction_id":"EQ-9","amount":3000,"bank_name":"Equity Bank"}`)
	if code != http.StatusOK || body["status"] != true || body["message"] != "Payment processed successfully" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected payment data, got %v", body["data"])
	}
	if data["admission_number"] != "ADM555" {
		t.Fatalf("unexpected data %v", data)
	}
}

func TestAuditHandler(t *testing.T) {
	s := newMemoryServer(t)
	post(t, s.callback.HandleB2CResult, b2cSuccess)

	t.Run("requires key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.audit.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("lists by status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/audit?status=unknown&limit=10", nil)
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		s.audit.ListAudit(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out struct {
			Count   int                   `json:"count"`
			Entries []domain.WebhookAudit `json:"entries"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Count != 1 || out.Entries[0].Source != domain.SourceMpesaB2CResult {
			t.Fatalf("unexpected listing %+v", out)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/audit?limit=abc", nil)
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		s.audit.ListAudit(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("summary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/audit/summary?window=1h", nil)
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		s.audit.RecoverySummary(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out struct {
			Counts map[string]int64 `json:"counts"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Counts["unknown"] != 1 {
			t.Fatalf("expected 1 unknown, got %v", out.Counts)
		}
	})

	t.Run("disabled without key", func(t *testing.T) {
		h := NewAuditHandler(s.uc, "", zap.NewNop())
		rec := httptest.NewRecorder()
		h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAuditHandler_EncodeFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewAuditHandler(nil, "secret", zap.New(core))

	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	entries := logs.FilterMessage("failed to encode response").All()
	if len(entries) != 1 {
		t.Fatalf("expected one encode failure log, got %d", len(entries))
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusOK) {
		t.Fatalf("expected status 200 in log, got %v", status)
	}
}

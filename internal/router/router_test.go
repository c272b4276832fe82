package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/handler"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T, logger *zap.Logger) (http.Handler, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	uc := usecase.NewReconcileUsecase(store, nil, nil, nil, usecase.Config{}, nil, logger)
	t.Cleanup(uc.Wait)

	return SetupRoutes(
		handler.NewCallbackHandler(uc, decimal.NewFromInt(100), logger),
		handler.NewBankHandler(uc, "", logger),
		handler.NewAuditHandler(uc, "key", logger),
		logger,
	), store
}

func TestRoutes(t *testing.T) {
	h, _ := newTestRouter(t, zap.NewNop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/api/v1/payments/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"b2c result malformed", http.MethodPost, "/api/v1/payments/mpesa/b2c/result", "{}", http.StatusBadRequest},
		{"b2c timeout", http.MethodPost, "/api/v1/payments/mpesa/b2c/timeout", "{}", http.StatusOK},
		{"c2b validation", http.MethodPost, "/api/v1/payments/mpesa/c2b/validation", `{"BillRefNumber":"ADM1"}`, http.StatusOK},
		{"c2b confirmation malformed", http.MethodPost, "/api/v1/payments/mpesa/c2b/confirmation", "{}", http.StatusBadRequest},
		{"kcb validation", http.MethodPost, "/api/v1/payments/kcb/validation", `{"requestId":"1"}`, http.StatusOK},
		{"kcb notification", http.MethodPost, "/api/v1/payments/kcb/notification", "{}", http.StatusOK},
		{"kcb transfer malformed", http.MethodPost, "/api/v1/payments/kcb/transfer", "{}", http.StatusBadRequest},
		{"bank webhook unclassified", http.MethodPost, "/api/v1/payments/bank/webhook", `{"account_ref":"ZZ"}`, http.StatusOK},
		{"audit needs key", http.MethodGet, "/api/v1/payments/audit", "", http.StatusUnauthorized},
		{"callbacks are post only", http.MethodGet, "/api/v1/payments/mpesa/b2c/result", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestRoutes_UnclassifiedIsAudited(t *testing.T) {
	h, store := newTestRouter(t, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/bank/webhook", strings.NewReader(`{"account_ref":"XYZ-1","amount":10}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "Unknown or unsupported payment type.") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	entries := store.AuditEntries()
	if len(entries) != 1 || entries[0].Status != domain.AuditUnsupported {
		t.Fatalf("expected one unsupported audit row, got %+v", entries)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mw := LoggerMiddleware(zap.New(core))

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusTeapot) {
		t.Fatalf("expected status 418, got %v", status)
	}
}

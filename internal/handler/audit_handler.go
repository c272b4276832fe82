// internal/handler/audit_handler.go
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"go.uber.org/zap"
)

// AuditHandler exposes the webhook audit trail for manual recovery.
type AuditHandler struct {
	reconcileUC *usecase.ReconcileUsecase
	apiKey      string
	logger      *zap.Logger
}

func NewAuditHandler(reconcileUC *usecase.ReconcileUsecase, apiKey string, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reconcileUC: reconcileUC, apiKey: apiKey, logger: logger}
}

func (h *AuditHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.apiKey == "" {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit endpoint disabled"})
		return false
	}
	key := r.Header.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		h.logger.Warn("rejected audit request", zap.String("remote_addr", r.RemoteAddr))
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		return false
	}
	return true
}

// ListAudit handles GET /audit?status=&source=&since=&limit=
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	q := r.URL.Query()
	filter := domain.AuditFilter{
		Source: domain.AuditSource(q.Get("source")),
		Status: domain.AuditStatus(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	entries, err := h.reconcileUC.ListAudit(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list audit entries", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if entries == nil {
		entries = []*domain.WebhookAudit{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// RecoverySummary handles GET /audit/summary?window=24h
func (h *AuditHandler) RecoverySummary(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "window must be a positive duration"})
			return
		}
		window = d
	}

	counts, err := h.reconcileUC.RecoveryBacklog(r.Context(), window)
	if err != nil {
		h.logger.Error("failed to count recovery backlog", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"window": window.String(),
		"counts": counts,
	})
}

func (h *AuditHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AuditSource tags the gateway a webhook arrived from.
type AuditSource string

const (
	SourceMpesaB2CResult       AuditSource = "mpesa_b2c_result"
	SourceMpesaB2CTimeout      AuditSource = "mpesa_b2c_timeout"
	SourceMpesaC2BValidation   AuditSource = "mpesa_c2b_validation"
	SourceMpesaC2BConfirmation AuditSource = "mpesa_c2b_confirmation"
	SourceKCBValidation        AuditSource = "kcb_validation"
	SourceKCBTransfer          AuditSource = "kcb_transfer"
	SourceKCBNotification      AuditSource = "kcb_notification"
	SourceBankWebhook          AuditSource = "bank_webhook"
)

// AllSources lists every source, used to build per-gateway loggers.
var AllSources = []AuditSource{
	SourceMpesaB2CResult,
	SourceMpesaB2CTimeout,
	SourceMpesaC2BValidation,
	SourceMpesaC2BConfirmation,
	SourceKCBValidation,
	SourceKCBTransfer,
	SourceKCBNotification,
	SourceBankWebhook,
}

type AuditStatus string

const (
	AuditProcessed      AuditStatus = "processed"
	AuditDuplicate      AuditStatus = "duplicate"
	AuditUnknown        AuditStatus = "unknown"
	AuditValidated      AuditStatus = "validated"
	AuditRejected       AuditStatus = "rejected"
	AuditNotImplemented AuditStatus = "not_implemented"
	AuditUnsupported    AuditStatus = "unsupported"
	AuditError          AuditStatus = "error"
	AuditOffline        AuditStatus = "offline"
)

// RecoveryStatuses are the audit statuses that need a human to replay or match the webhook.
var RecoveryStatuses = []AuditStatus{AuditUnknown, AuditError, AuditOffline}

// WebhookAudit is an append-only row in payment_webhooks_log.
type WebhookAudit struct {
	ID           int64           `json:"id" db:"id"`
	Source       AuditSource     `json:"source" db:"source"`
	Reference    string          `json:"reference" db:"reference"`
	Status       AuditStatus     `json:"status" db:"status"`
	WebhookData  json.RawMessage `json:"webhook_data" db:"webhook_data"`
	Signature    string          `json:"signature,omitempty" db:"signature"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	Source AuditSource
	Status AuditStatus
	Since  time.Time
	Limit  int
}

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

func (f *AuditFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
}

// Sanitize makes the text fields storable in Postgres text columns.
func (a *WebhookAudit) Sanitize() {
	a.Reference = CleanText(a.Reference)
	a.Signature = CleanText(a.Signature)
	a.ErrorMessage = CleanText(a.ErrorMessage)
}

// CleanText replaces invalid UTF-8 with U+FFFD and drops NUL, neither of which
// Postgres accepts in text or JSONB.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// TruncateSignature keeps the first 50 characters of a signature header for audit.
func TruncateSignature(sig string) string {
	const limit = 50
	sig = CleanText(sig)
	r := []rune(sig)
	if len(r) <= limit {
		return sig
	}
	return string(r[:limit]) + "..."
}

// FailsOpen reports whether the gateway is always acknowledged with success,
// leaving internal failures to manual recovery.
func (s AuditSource) FailsOpen() bool {
	switch s {
	case SourceMpesaB2CTimeout, SourceKCBNotification, SourceMpesaC2BValidation, SourceKCBValidation:
		return true
	default:
		return false
	}
}

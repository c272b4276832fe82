package notifier

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"go.uber.org/zap"
)

// Notification categories sent after a ledger change commits.
const (
	CategoryDisbursementCompleted = "disbursement_completed"
	CategoryDisbursementFailed    = "disbursement_failed"
	CategoryTimeoutExhausted      = "disbursement_timeout_exhausted"
	CategoryFeePaymentReceived    = "fee_payment_received"
)

// Notifier delivers a templated message to a contact. Callers run it after
// commit and only log its errors.
type Notifier interface {
	Notify(ctx context.Context, to domain.Contact, category string, vars map[string]string) error
}

var templates = template.Must(template.New("notifications").Option("missingkey=zero").Parse(`
{{define "disbursement_completed"}}Payment Received!
Amount: KES {{.amount}}
Receipt: {{.receipt}}
Thank you.{{end}}
{{define "disbursement_failed"}}Payment Failed
Amount: KES {{.amount}}
Reason: {{.reason}}
Please contact admin.{{end}}
{{define "disbursement_timeout_exhausted"}}DISBURSEMENT FAILED AFTER MAX RETRIES

Recipient: {{.recipient}}
Phone: {{.phone}}
Amount: KES {{.amount}}
Type: {{.type}}
Reason: {{.reason}}
Action Required: Manual disbursement needed.{{end}}
{{define "fee_payment_received"}}Payment Received!
Student: {{.student}}
Admission: {{.admission_no}}
Amount: KES {{.amount}}
Ref: {{.reference}}
Method: {{.method}}
Thank you for your payment.{{end}}
`))

// Render builds the message body for a category.
func Render(category string, vars map[string]string) (string, error) {
	t := templates.Lookup(category)
	if t == nil {
		return "", fmt.Errorf("unknown notification category %q", category)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", category, err)
	}
	return buf.String(), nil
}

// LogNotifier only logs the rendered message. It is the default when no
// gateway is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, to domain.Contact, category string, vars map[string]string) error {
	body, err := Render(category, vars)
	if err != nil {
		return err
	}
	n.logger.Info("notification",
		zap.String("category", category),
		zap.String("to_name", to.Name),
		zap.String("to_phone", to.Phone),
		zap.String("to_email", to.Email),
		zap.String("body", body))
	return nil
}

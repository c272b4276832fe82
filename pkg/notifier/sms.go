package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("contact has no phone number")

// SMSConfig holds the bulk SMS portal credentials.
type SMSConfig struct {
	BaseURL  string
	APIKey   string
	UserID   string
	Password string
	SenderID string
}

// SMSNotifier posts rendered messages to the bulk SMS portal.
type SMSNotifier struct {
	cfg    SMSConfig
	client *http.Client
	logger *zap.Logger
}

func NewSMSNotifier(cfg SMSConfig, logger *zap.Logger) *SMSNotifier {
	return &SMSNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *SMSNotifier) Notify(ctx context.Context, to domain.Contact, category string, vars map[string]string) error {
	if to.Phone == "" {
		return ErrNoRecipient
	}
	body, err := Render(category, vars)
	if err != nil {
		return err
	}
	return n.send(ctx, to.Phone, body)
}

func (n *SMSNotifier) send(ctx context.Context, mobile, msg string) error {
	start := time.Now()

	form := url.Values{}
	form.Set("userid", n.cfg.UserID)
	form.Set("password", n.cfg.Password)
	form.Set("senderid", n.cfg.SenderID)
	form.Set("sendMethod", "quick")
	form.Set("msgType", "text")
	form.Set("msg", msg)
	form.Set("mobile", mobile)
	form.Set("duplicatecheck", "true")
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if n.cfg.APIKey != "" {
		req.Header.Set("apikey", n.cfg.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("sms send failed",
			zap.String("mobile", mobile),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("response", string(respBody)))
		return fmt.Errorf("sms api error: status %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Debug("sms sent",
		zap.String("mobile", mobile),
		zap.String("sender_id", n.cfg.SenderID),
		zap.Duration("duration", time.Since(start)))
	return nil
}

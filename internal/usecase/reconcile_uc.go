// internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/metrics"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/events"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/notifier"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the reconciliation rules that vary per deployment.
type Config struct {
	MaxTimeoutRetries int
	MinPaybillAmount  decimal.Decimal
	NotifyTimeout     time.Duration
	AdminContact      domain.Contact
}

// ReconcileUsecase is the reconciliation engine. Every gateway event goes
// through exactly one of its Apply/Validate/Process methods, which return the
// outcome and never let a raw error reach a gateway.
type ReconcileUsecase struct {
	store     repository.LedgerStore
	guard     *IdempotencyGuard
	publisher events.Publisher
	notifier  notifier.Notifier
	cfg       Config
	gateways  map[string]*zap.Logger
	logger    *zap.Logger
	now       func() time.Time

	effects sync.WaitGroup
}

func NewReconcileUsecase(
	store repository.LedgerStore,
	cache ReferenceCache,
	publisher events.Publisher,
	notify notifier.Notifier,
	cfg Config,
	gateways map[string]*zap.Logger,
	logger *zap.Logger,
) *ReconcileUsecase {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if notify == nil {
		notify = notifier.NewLogNotifier(logger)
	}
	if cfg.MaxTimeoutRetries <= 0 {
		cfg.MaxTimeoutRetries = 3
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if gateways == nil {
		gateways = map[string]*zap.Logger{}
	}

	return &ReconcileUsecase{
		store:     store,
		guard:     NewIdempotencyGuard(cache, logger),
		publisher: publisher,
		notifier:  notify,
		cfg:       cfg,
		gateways:  gateways,
		logger:    logger,
		now:       time.Now,
	}
}

// gatewayLog returns the per-gateway logger, falling back to the main one.
func (uc *ReconcileUsecase) gatewayLog(source domain.AuditSource) *zap.Logger {
	if l, ok := uc.gateways[string(source)]; ok && l != nil {
		return l
	}
	return uc.logger.With(zap.String("gateway", string(source)))
}

// audit appends a row outside any ledger transaction. It survives request
// cancellation; a failure is logged and never changes the outcome.
func (uc *ReconcileUsecase) audit(ctx context.Context, source domain.AuditSource, ref string, status domain.AuditStatus, raw []byte, signature, msg string) {
	entry := &domain.WebhookAudit{
		Source:       source,
		Reference:    ref,
		Status:       status,
		WebhookData:  raw,
		Signature:    signature,
		ErrorMessage: msg,
	}
	if err := uc.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		uc.gatewayLog(source).Error("failed to write audit entry",
			zap.String("reference", ref),
			zap.String("status", string(status)),
			zap.ByteString("raw", raw),
			zap.Error(err))
	}
}

// fail records a transactional failure. Fail-open gateways are audited as
// offline, the rest as error; both carry the raw payload for replay.
func (uc *ReconcileUsecase) fail(ctx context.Context, op string, source domain.AuditSource, ref string, raw []byte, signature string, err error) error {
	status := domain.AuditError
	if source.FailsOpen() {
		status = domain.AuditOffline
	}
	uc.audit(ctx, source, ref, status, raw, signature, err.Error())
	uc.gatewayLog(source).Error("reconciliation failed",
		zap.String("op", op),
		zap.String("reference", ref),
		zap.Bool("fail_open", source.FailsOpen()),
		zap.ByteString("raw", raw),
		zap.Error(err),
		zap.Stack("stack"))
	return domain.Transactional(op, err)
}

// RecordRejected audits a payload the adapter could not parse and returns the
// malformed error the adapter renders.
func (uc *ReconcileUsecase) RecordRejected(ctx context.Context, source domain.AuditSource, raw []byte, signature string, err error) error {
	metrics.ObserveWebhook(string(source), "malformed", uc.now())
	return uc.reject(ctx, source, raw, signature, err)
}

func (uc *ReconcileUsecase) reject(ctx context.Context, source domain.AuditSource, raw []byte, signature string, err error) error {
	uc.audit(ctx, source, "", domain.AuditRejected, raw, signature, err.Error())
	uc.gatewayLog(source).Warn("malformed payload",
		zap.ByteString("raw", raw),
		zap.Error(err))
	return domain.Malformed("parse "+string(source), err)
}

func (uc *ReconcileUsecase) observe(source domain.AuditSource, res *domain.Result, err error, started time.Time) {
	outcome := "error"
	switch {
	case domain.IsMalformed(err):
		outcome = "malformed"
	case err == nil && res != nil:
		outcome = string(res.Outcome)
	}
	metrics.ObserveWebhook(string(source), outcome, started)
}

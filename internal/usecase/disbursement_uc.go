// internal/usecase/disbursement_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/events"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/notifier"

	"go.uber.org/zap"
)

func railFor(source domain.AuditSource) domain.Rail {
	if source == domain.SourceKCBTransfer {
		return domain.RailBank
	}
	return domain.RailMpesa
}

// ApplyDisbursementResult settles a pending disbursement from a B2C or bank
// transfer result. The ledger row and its payroll/supplier mirror change in one
// transaction.
func (uc *ReconcileUsecase) ApplyDisbursementResult(ctx context.Context, ev *domain.DisbursementResult) (*domain.Result, error) {
	start := time.Now()
	res, err := uc.applyDisbursementResult(ctx, ev)
	uc.observe(ev.Source, res, err, start)
	return res, err
}

func (uc *ReconcileUsecase) applyDisbursementResult(ctx context.Context, ev *domain.DisbursementResult) (*domain.Result, error) {
	const op = "apply disbursement result"
	log := uc.gatewayLog(ev.Source)

	if ev.Keys.IsEmpty() {
		return nil, uc.reject(ctx, ev.Source, ev.Raw, ev.Signature,
			domain.NewParseError(ev.Source, "ConversationID", "no disbursement reference"))
	}
	ref := ev.Keys.Primary()

	if uc.guard.Seen(ctx, channelDisbursement, ref) {
		uc.audit(ctx, ev.Source, ref, domain.AuditDuplicate, ev.Raw, ev.Signature, "")
		return domain.NewResult(domain.OutcomeAlreadyProcessed), nil
	}

	d, err := uc.store.FindDisbursement(ctx, ev.Keys)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("disbursement not found",
			zap.String("reference", ref),
			zap.String("result_code", ev.ResultCode),
			zap.ByteString("raw", ev.Raw))
		uc.audit(ctx, ev.Source, ref, domain.AuditUnknown, ev.Raw, ev.Signature, "Transaction not found")
		return domain.NewResult(domain.OutcomeUnmatched), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, ev.Source, ref, ev.Raw, ev.Signature, err)
	}

	if uc.guard.DisbursementApplied(d) {
		return uc.alreadyProcessed(ctx, ev.Source, ref, ev.Raw, ev.Signature, d), nil
	}

	now := uc.now()
	var applied domain.Disbursement

	err = uc.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockDisbursement(ctx, d.ID)
		if err != nil {
			return err
		}
		if uc.guard.DisbursementApplied(locked) {
			return errAlreadyApplied
		}

		mirror := &domain.MirrorUpdate{
			Rail:    railFor(ev.Source),
			Charges: ev.Charges,
			At:      now,
		}

		if ev.Success {
			err = tx.CompleteDisbursement(ctx, locked.ID, &domain.DisbursementCompletion{
				TransactionRef:    ev.LedgerReference(),
				TransactionID:     ev.TransactionID,
				ResultDescription: ev.ResultDesc,
				BankCharges:       ev.Charges,
				CallbackData:      ev.Raw,
				CompletedAt:       now,
			})
			locked.Status = domain.DisbursementCompleted
			mirror.Status = domain.MirrorCompleted
			mirror.Reference = ev.MirrorReference()
		} else {
			err = tx.FailDisbursement(ctx, locked.ID, &domain.DisbursementFailure{
				ResultDescription: ev.ResultDesc,
				CallbackData:      ev.Raw,
				FailedAt:          now,
			})
			locked.Status = domain.DisbursementFailed
			mirror.Status = domain.MirrorFailed
			mirror.Notes = "Disbursement failed: " + ev.ResultDesc
		}
		if err != nil {
			return err
		}

		if err := tx.UpdateDisbursementMirror(ctx, locked, mirror); err != nil {
			return fmt.Errorf("update %s mirror: %w", locked.DisbursementType, err)
		}

		if err := tx.AppendAudit(ctx, &domain.WebhookAudit{
			Source:      ev.Source,
			Reference:   ref,
			Status:      domain.AuditProcessed,
			WebhookData: ev.Raw,
			Signature:   ev.Signature,
		}); err != nil {
			return err
		}

		applied = *locked
		return nil
	})
	if IsDuplicate(err) {
		return uc.alreadyProcessed(ctx, ev.Source, ref, ev.Raw, ev.Signature, d), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, ev.Source, ref, ev.Raw, ev.Signature, err)
	}

	log.Info("disbursement settled",
		zap.Int64("disbursement_id", applied.ID),
		zap.String("type", string(applied.DisbursementType)),
		zap.String("status", string(applied.Status)),
		zap.String("reference", ev.LedgerReference()),
		zap.String("amount", applied.Amount.String()))

	eventType := events.TypeDisbursementCompleted
	if !ev.Success {
		eventType = events.TypeDisbursementFailed
	}

	uc.afterCommit(
		uc.notifyDisbursement(&applied, ev),
		uc.publishEffect(events.LedgerEvent{
			Type:           eventType,
			Source:         string(ev.Source),
			Reference:      ref,
			Amount:         applied.Amount.String(),
			DisbursementID: applied.ID,
			OccurredAt:     now,
		}),
		uc.rememberEffect(channelDisbursement, ref),
	)

	res := domain.NewResult(domain.OutcomeApplied)
	res.Disbursement = &applied
	return res, nil
}

// ApplyDisbursementTimeout records a B2C queue timeout on a pending
// disbursement. Reaching the retry ceiling fails it for manual payout.
func (uc *ReconcileUsecase) ApplyDisbursementTimeout(ctx context.Context, ev *domain.DisbursementTimeout) (*domain.Result, error) {
	start := time.Now()
	res, err := uc.applyDisbursementTimeout(ctx, ev)
	uc.observe(ev.Source, res, err, start)
	return res, err
}

func (uc *ReconcileUsecase) applyDisbursementTimeout(ctx context.Context, ev *domain.DisbursementTimeout) (*domain.Result, error) {
	const op = "apply disbursement timeout"
	log := uc.gatewayLog(ev.Source)

	if ev.Keys.IsEmpty() {
		return nil, uc.reject(ctx, ev.Source, ev.Raw, "",
			domain.NewParseError(ev.Source, "ConversationID", "no disbursement reference"))
	}
	ref := ev.Keys.Primary()

	d, err := uc.store.FindDisbursement(ctx, ev.Keys)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("disbursement not found for timeout", zap.String("reference", ref), zap.ByteString("raw", ev.Raw))
		uc.audit(ctx, ev.Source, ref, domain.AuditUnknown, ev.Raw, "", "Transaction not found")
		return domain.NewResult(domain.OutcomeUnmatched), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, ev.Source, ref, ev.Raw, "", err)
	}

	if uc.guard.TimeoutApplied(d) {
		return uc.alreadyProcessed(ctx, ev.Source, ref, ev.Raw, "", d), nil
	}

	now := uc.now()
	var (
		applied   domain.Disbursement
		exhausted bool
	)

	err = uc.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockDisbursement(ctx, d.ID)
		if err != nil {
			return err
		}
		if uc.guard.TimeoutApplied(locked) {
			return errAlreadyApplied
		}

		locked.RetryCount++
		if err := tx.RecordDisbursementTimeout(ctx, locked.ID, locked.RetryCount, ev.ResultDesc, ev.Raw); err != nil {
			return err
		}
		locked.Status = domain.DisbursementTimedOut

		if locked.RetryCount >= uc.cfg.MaxTimeoutRetries {
			exhausted = true
			note := "Max retries exceeded: " + ev.ResultDesc
			if err := tx.FailDisbursement(ctx, locked.ID, &domain.DisbursementFailure{
				ResultDescription: ev.ResultDesc,
				Notes:             note,
				CallbackData:      ev.Raw,
				FailedAt:          now,
			}); err != nil {
				return err
			}
			locked.Status = domain.DisbursementFailed

			if err := tx.UpdateDisbursementMirror(ctx, locked, &domain.MirrorUpdate{
				Status: domain.MirrorFailed,
				Rail:   domain.RailMpesa,
				At:     now,
				Notes:  note,
			}); err != nil {
				return fmt.Errorf("update %s mirror: %w", locked.DisbursementType, err)
			}
		}

		if err := tx.AppendAudit(ctx, &domain.WebhookAudit{
			Source:      ev.Source,
			Reference:   ref,
			Status:      domain.AuditProcessed,
			WebhookData: ev.Raw,
		}); err != nil {
			return err
		}

		applied = *locked
		return nil
	})
	if IsDuplicate(err) {
		return uc.alreadyProcessed(ctx, ev.Source, ref, ev.Raw, "", d), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, ev.Source, ref, ev.Raw, "", err)
	}

	log.Warn("disbursement timed out",
		zap.Int64("disbursement_id", applied.ID),
		zap.Int("retry_count", applied.RetryCount),
		zap.Int("max_retries", uc.cfg.MaxTimeoutRetries),
		zap.Bool("exhausted", exhausted),
		zap.String("description", ev.ResultDesc))

	eventType := events.TypeDisbursementTimeout
	effects := []sideEffect{}
	if exhausted {
		eventType = events.TypeDisbursementFailed
		effects = append(effects, uc.notifyEffect(uc.cfg.AdminContact, notifier.CategoryTimeoutExhausted, map[string]string{
			"recipient": applied.RecipientName,
			"phone":     deref(applied.PhoneNumber),
			"amount":    domain.FormatMoney(applied.Amount),
			"type":      strings.ToUpper(string(applied.DisbursementType)),
			"reason":    ev.ResultDesc,
		}))
	}
	effects = append(effects, uc.publishEffect(events.LedgerEvent{
		Type:           eventType,
		Source:         string(ev.Source),
		Reference:      ref,
		Amount:         applied.Amount.String(),
		DisbursementID: applied.ID,
		OccurredAt:     now,
	}))
	uc.afterCommit(effects...)

	res := domain.NewResult(domain.OutcomeApplied)
	res.Disbursement = &applied
	res.RetryExhausted = exhausted
	return res, nil
}

func (uc *ReconcileUsecase) alreadyProcessed(ctx context.Context, source domain.AuditSource, ref string, raw []byte, signature string, d *domain.Disbursement) *domain.Result {
	uc.gatewayLog(source).Info("duplicate delivery", zap.String("reference", ref))
	uc.audit(ctx, source, ref, domain.AuditDuplicate, raw, signature, "")
	res := domain.NewResult(domain.OutcomeAlreadyProcessed)
	res.Disbursement = d
	return res
}

func (uc *ReconcileUsecase) notifyDisbursement(d *domain.Disbursement, ev *domain.DisbursementResult) sideEffect {
	if ev.Success {
		return uc.notifyEffect(d.Contact(), notifier.CategoryDisbursementCompleted, map[string]string{
			"amount":  domain.FormatMoney(d.Amount),
			"receipt": ev.LedgerReference(),
		})
	}
	return uc.notifyEffect(d.Contact(), notifier.CategoryDisbursementFailed, map[string]string{
		"amount": domain.FormatMoney(d.Amount),
		"reason": ev.ResultDesc,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

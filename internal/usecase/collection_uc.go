// internal/usecase/collection_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/accountref"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/events"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/notifier"

	"go.uber.org/zap"
)

// ApplyCollection records a confirmed incoming payment against a student's fee
// account. The payment row, channel row and balance decrement commit together.
func (uc *ReconcileUsecase) ApplyCollection(ctx context.Context, c *domain.Collection) (*domain.Result, error) {
	start := time.Now()
	res, err := uc.applyCollection(ctx, c)
	uc.observe(c.Source, res, err, start)
	return res, err
}

func (uc *ReconcileUsecase) applyCollection(ctx context.Context, c *domain.Collection) (*domain.Result, error) {
	const op = "apply collection"
	log := uc.gatewayLog(c.Source)

	if err := c.Validate(); err != nil {
		return nil, uc.reject(ctx, c.Source, c.Raw, c.Signature, err)
	}
	channel := collectionChannel(c.Method)

	if uc.guard.Seen(ctx, channel, c.Reference) {
		uc.audit(ctx, c.Source, c.Reference, domain.AuditDuplicate, c.Raw, c.Signature, "")
		return domain.NewResult(domain.OutcomeAlreadyProcessed), nil
	}

	student, err := uc.store.FindStudentByAdmission(ctx, c.AdmissionNo)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("student not found for payment",
			zap.String("reference", c.Reference),
			zap.String("admission_no", c.AdmissionNo),
			zap.String("amount", c.Amount.String()),
			zap.ByteString("raw", c.Raw))
		uc.audit(ctx, c.Source, c.Reference, domain.AuditUnknown, c.Raw, c.Signature,
			fmt.Sprintf("Student not found: %s", c.AdmissionNo))
		return domain.NewResult(domain.OutcomeUnmatched), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, c.Source, c.Reference, c.Raw, c.Signature, err)
	}

	var payment domain.IncomingPayment

	err = uc.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		applied, err := uc.guard.CollectionApplied(ctx, tx, c)
		if err != nil {
			return err
		}
		if applied {
			return errAlreadyApplied
		}

		if c.RecordsBankTransaction() {
			if err := tx.InsertBankTransaction(ctx, &domain.BankTransaction{
				TransactionRef:  c.Reference,
				StudentID:       student.ID,
				Amount:          c.Amount,
				TransactionDate: c.PaidAt,
				BankName:        c.BankName,
				AccountNumber:   c.AccountNumber,
				Narration:       c.Narration,
				Status:          string(domain.AuditProcessed),
				WebhookData:     c.Raw,
			}); err != nil {
				return err
			}
		}

		if c.RecordsMpesaTransaction() {
			if err := tx.InsertMpesaTransaction(ctx, &domain.MpesaTransaction{
				MpesaCode:       c.Reference,
				StudentID:       student.ID,
				Amount:          c.Amount,
				TransactionDate: c.PaidAt,
				PhoneNumber:     c.PayerPhone,
				Status:          string(domain.AuditProcessed),
				RawCallback:     c.Raw,
			}); err != nil {
				return err
			}
		}

		p := &domain.IncomingPayment{
			StudentID:     student.ID,
			AmountPaid:    c.Amount,
			PaymentDate:   c.PaidAt,
			PaymentMethod: c.Method,
			ReferenceNo:   c.Reference,
			ReceiptNo:     c.ReceiptNo(),
			Status:        domain.PaymentConfirmed,
			Notes:         c.Notes,
		}
		if err := tx.InsertIncomingPayment(ctx, p); err != nil {
			return err
		}

		if err := tx.DecrementFeeBalance(ctx, student.ID, c.Amount); err != nil {
			return fmt.Errorf("update fee balance: %w", err)
		}

		if err := tx.AppendAudit(ctx, &domain.WebhookAudit{
			Source:      c.Source,
			Reference:   c.Reference,
			Status:      domain.AuditProcessed,
			WebhookData: c.Raw,
			Signature:   c.Signature,
		}); err != nil {
			return err
		}

		payment = *p
		return nil
	})
	if IsDuplicate(err) {
		log.Info("duplicate payment", zap.String("reference", c.Reference), zap.String("method", string(c.Method)))
		uc.audit(ctx, c.Source, c.Reference, domain.AuditDuplicate, c.Raw, c.Signature, "")
		res := domain.NewResult(domain.OutcomeAlreadyProcessed)
		res.Student = student
		return res, nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, c.Source, c.Reference, c.Raw, c.Signature, err)
	}

	student.Balance = student.Balance.Sub(c.Amount)

	log.Info("payment recorded",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("student_id", student.ID),
		zap.String("admission_no", student.AdmissionNo),
		zap.String("reference", c.Reference),
		zap.String("receipt_no", payment.ReceiptNo),
		zap.String("amount", c.Amount.String()))

	uc.afterCommit(
		uc.notifyEffect(domain.Contact{Name: student.FullName(), Phone: student.ParentPhone, Email: student.ParentEmail},
			notifier.CategoryFeePaymentReceived, map[string]string{
				"student":      student.FullName(),
				"admission_no": student.AdmissionNo,
				"amount":       domain.FormatMoney(c.Amount),
				"reference":    c.Reference,
				"method":       strings.ToUpper(string(c.Method)),
			}),
		uc.publishEffect(events.LedgerEvent{
			Type:       events.TypePaymentReceived,
			Source:     string(c.Source),
			Reference:  c.Reference,
			Amount:     c.Amount.String(),
			StudentID:  student.ID,
			PaymentID:  payment.ID,
			OccurredAt: uc.now(),
		}),
		uc.rememberEffect(channel, c.Reference),
	)

	res := domain.NewResult(domain.OutcomeApplied)
	res.Payment = &payment
	res.Student = student
	return res, nil
}

// ValidateAccount answers a pre-debit lookup. It never writes the ledger; an
// acceptance is audited, a refusal only goes to the gateway log.
func (uc *ReconcileUsecase) ValidateAccount(ctx context.Context, q *domain.AccountQuery) (*domain.Result, error) {
	start := time.Now()
	res, err := uc.validateAccount(ctx, q)
	uc.observe(q.Source, res, err, start)
	return res, err
}

func (uc *ReconcileUsecase) validateAccount(ctx context.Context, q *domain.AccountQuery) (*domain.Result, error) {
	const op = "validate account"
	log := uc.gatewayLog(q.Source)

	reject := func(reason domain.RejectReason, s *domain.Student) *domain.Result {
		log.Warn("validation rejected",
			zap.String("request_id", q.RequestID),
			zap.String("admission_no", q.AdmissionNo),
			zap.String("reason", string(reason)),
			zap.String("signature", q.Signature))
		res := domain.NewResult(domain.OutcomeRejected)
		res.Reject = reason
		res.Student = s
		return res
	}

	if strings.TrimSpace(q.AdmissionNo) == "" {
		return reject(domain.RejectMissingAccount, nil), nil
	}

	student, err := uc.store.FindStudentByAdmission(ctx, q.AdmissionNo)
	if errors.Is(err, domain.ErrNotFound) {
		return reject(domain.RejectAccountNotFound, nil), nil
	}
	if err != nil {
		return nil, uc.fail(ctx, op, q.Source, q.AdmissionNo, q.Raw, q.Signature, err)
	}

	if !student.CanPay() {
		return reject(domain.RejectAccountInactive, student), nil
	}

	if q.Source == domain.SourceMpesaC2BValidation && uc.cfg.MinPaybillAmount.IsPositive() && q.Amount.LessThan(uc.cfg.MinPaybillAmount) {
		return reject(domain.RejectAmountTooLow, student), nil
	}

	ref := q.RequestID
	if ref == "" {
		ref = q.AdmissionNo
	}
	uc.audit(ctx, q.Source, ref, domain.AuditValidated, q.Raw, q.Signature, "")

	log.Info("validation accepted",
		zap.String("request_id", q.RequestID),
		zap.String("admission_no", student.AdmissionNo),
		zap.String("balance", student.Balance.String()))

	res := domain.NewResult(domain.OutcomeValidated)
	res.Student = student
	return res, nil
}

// ProcessBankWebhook routes a generic bank notification by its account
// reference. Only fee purposes touch the ledger; the others get an explicit
// not-implemented outcome.
func (uc *ReconcileUsecase) ProcessBankWebhook(ctx context.Context, w *domain.BankWebhook) (*domain.Result, error) {
	start := time.Now()
	res, err := uc.processBankWebhook(ctx, w)
	uc.observe(domain.SourceBankWebhook, res, err, start)
	return res, err
}

func (uc *ReconcileUsecase) processBankWebhook(ctx context.Context, w *domain.BankWebhook) (*domain.Result, error) {
	source := domain.SourceBankWebhook
	purpose := accountref.Classify(w.AccountRef, w.Narration)

	ref := w.TransactionRef
	if ref == "" {
		ref = w.AccountRef
	}

	uc.gatewayLog(source).Info("bank webhook classified",
		zap.String("bank", w.BankName),
		zap.String("account_ref", w.AccountRef),
		zap.String("purpose", string(purpose)))

	switch {
	case purpose.IsFee():
		res, err := uc.applyCollection(ctx, w.Collection())
		if res != nil {
			res.Purpose = purpose
		}
		return res, err

	case purpose == domain.PurposeUnclassified:
		uc.audit(ctx, source, ref, domain.AuditUnsupported, w.Raw, w.Signature, "Unknown or unsupported payment type")
		res := domain.NewResult(domain.OutcomeUnclassified)
		return res, nil

	default:
		msg := fmt.Sprintf("%s payment processing not yet implemented", purpose.Label())
		uc.audit(ctx, source, ref, domain.AuditNotImplemented, w.Raw, w.Signature, msg)
		res := domain.NewResult(domain.OutcomeNotImplemented)
		res.Purpose = purpose
		return res, nil
	}
}

// internal/repository/disbursement_repo.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/jackc/pgx/v5"
)

const disbursementColumns = `
	d.id, d.disbursement_type, d.recipient_id, d.recipient_name, d.amount::text,
	COALESCE(d.phone_number, st.phone_number, sp.phone_number), d.account_number,
	COALESCE(st.email, sp.email),
	d.status, d.conversation_id, d.originator_conversation_id, d.request_id,
	d.transaction_ref, d.transaction_id, d.result_description, d.bank_charges::text,
	d.retry_count, d.notes, d.completed_at, d.failed_at, d.created_at, d.updated_at`

const disbursementJoins = `
	FROM disbursement_transactions d
	LEFT JOIN staff st ON d.disbursement_type = 'salary' AND st.id = d.recipient_id
	LEFT JOIN suppliers sp ON d.disbursement_type = 'supplier' AND sp.id = d.recipient_id`

func scanDisbursement(row pgx.Row) (*domain.Disbursement, error) {
	var (
		d       domain.Disbursement
		amount  *string
		charges *string
	)
	err := row.Scan(
		&d.ID,
		&d.DisbursementType,
		&d.RecipientID,
		&d.RecipientName,
		&amount,
		&d.PhoneNumber,
		&d.AccountNumber,
		&d.ContactEmail,
		&d.Status,
		&d.ConversationID,
		&d.OriginatorConversationID,
		&d.RequestID,
		&d.TransactionRef,
		&d.TransactionID,
		&d.ResultDescription,
		&charges,
		&d.RetryCount,
		&d.Notes,
		&d.CompletedAt,
		&d.FailedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	d.Amount = parseDecimal(amount)
	d.BankCharges = parseDecimal(charges)
	return &d, nil
}

func findDisbursement(ctx context.Context, q querier, keys domain.DisbursementKeys) (*domain.Disbursement, error) {
	if keys.IsEmpty() {
		return nil, domain.ErrNotFound
	}

	query := `SELECT ` + disbursementColumns + disbursementJoins + `
		WHERE ($1 <> '' AND d.conversation_id = $1)
		   OR ($2 <> '' AND d.originator_conversation_id = $2)
		   OR ($3 <> '' AND d.request_id = $3)
		   OR ($4 <> '' AND d.transaction_ref = $4)
		ORDER BY d.id DESC
		LIMIT 1`

	d, err := scanDisbursement(q.QueryRow(ctx, query,
		keys.ConversationID,
		keys.OriginatorConversationID,
		keys.RequestID,
		keys.TransactionRef,
	))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find disbursement: %w", err)
	}
	return d, nil
}

// LockDisbursement re-reads the row with a row lock so concurrent callbacks for
// the same disbursement serialize on it.
func (t *ledgerTx) LockDisbursement(ctx context.Context, id int64) (*domain.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + disbursementJoins + `
		WHERE d.id = $1
		FOR UPDATE OF d`

	d, err := scanDisbursement(t.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock disbursement %d: %w", id, err)
	}
	return d, nil
}

func (t *ledgerTx) CompleteDisbursement(ctx context.Context, id int64, c *domain.DisbursementCompletion) error {
	query := `
		UPDATE disbursement_transactions
		SET status = 'completed',
			transaction_ref = COALESCE($2, transaction_ref),
			transaction_id = COALESCE($3, transaction_id),
			result_description = $4,
			bank_charges = $5::numeric,
			callback_data = $6,
			completed_at = $7,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.q.Exec(ctx, query,
		id,
		nullIfEmpty(c.TransactionRef),
		nullIfEmpty(c.TransactionID),
		c.ResultDescription,
		c.BankCharges.String(),
		jsonOrEmpty(c.CallbackData),
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete disbursement %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) FailDisbursement(ctx context.Context, id int64, f *domain.DisbursementFailure) error {
	query := `
		UPDATE disbursement_transactions
		SET status = 'failed',
			result_description = $2,
			notes = COALESCE($3, notes),
			callback_data = $4,
			failed_at = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.q.Exec(ctx, query,
		id,
		f.ResultDescription,
		nullIfEmpty(f.Notes),
		jsonOrEmpty(f.CallbackData),
		f.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to fail disbursement %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) RecordDisbursementTimeout(ctx context.Context, id int64, retryCount int, desc string, raw json.RawMessage) error {
	query := `
		UPDATE disbursement_transactions
		SET status = 'timeout',
			retry_count = $2,
			result_description = $3,
			callback_data = $4,
			last_retry_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.q.Exec(ctx, query, id, retryCount, desc, jsonOrEmpty(raw))
	if err != nil {
		return fmt.Errorf("failed to record timeout for disbursement %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateDisbursementMirror writes the per-purpose status mirror. Disbursements of
// type "other" have no mirror and are a no-op.
func (t *ledgerTx) UpdateDisbursementMirror(ctx context.Context, d *domain.Disbursement, u *domain.MirrorUpdate) error {
	var query string

	switch d.DisbursementType {
	case domain.DisbursementSalary:
		query = `
			UPDATE staff_payments
			SET disbursement_status = $2,
				mpesa_receipt = CASE WHEN $3 = 'mpesa' THEN $4 ELSE mpesa_receipt END,
				bank_reference = CASE WHEN $3 = 'bank' THEN $4 ELSE bank_reference END,
				bank_charges = $5::numeric,
				disbursement_date = CASE WHEN $2 = 'completed' THEN $6 ELSE disbursement_date END,
				disbursement_notes = COALESCE($7, disbursement_notes)
			WHERE disbursement_id = $1
		`
	case domain.DisbursementSupplier:
		query = `
			UPDATE supplier_payments
			SET payment_status = $2,
				mpesa_receipt = CASE WHEN $3 = 'mpesa' THEN $4 ELSE mpesa_receipt END,
				bank_reference = CASE WHEN $3 = 'bank' THEN $4 ELSE bank_reference END,
				bank_charges = $5::numeric,
				payment_date = CASE WHEN $2 = 'completed' THEN $6 ELSE payment_date END,
				payment_notes = COALESCE($7, payment_notes)
			WHERE disbursement_id = $1
		`
	default:
		return nil
	}

	_, err := t.q.Exec(ctx, query,
		d.ID,
		string(u.Status),
		string(u.Rail),
		nullIfEmpty(u.Reference),
		u.Charges.String(),
		u.At,
		nullIfEmpty(u.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s payment mirror for disbursement %d: %w", d.DisbursementType, d.ID, err)
	}
	return nil
}

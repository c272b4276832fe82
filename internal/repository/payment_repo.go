// internal/repository/payment_repo.go
package repository

import (
	"context"
	"fmt"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/shopspring/decimal"
)

func (t *ledgerTx) PaymentExists(ctx context.Context, referenceNo string, method domain.PaymentMethod) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payment_transactions
			WHERE reference_no = $1 AND payment_method = $2
		)
	`, referenceNo, string(method)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment reference: %w", err)
	}
	return exists, nil
}

func (t *ledgerTx) BankTransactionExists(ctx context.Context, transactionRef string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM bank_transactions WHERE transaction_ref = $1)
	`, transactionRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check bank transaction reference: %w", err)
	}
	return exists, nil
}

func (t *ledgerTx) InsertBankTransaction(ctx context.Context, bt *domain.BankTransaction) error {
	query := `
		INSERT INTO bank_transactions (
			transaction_ref, student_id, amount, transaction_date, bank_name,
			account_number, narration, status, webhook_data
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := t.q.QueryRow(ctx, query,
		bt.TransactionRef,
		bt.StudentID,
		bt.Amount.String(),
		bt.TransactionDate,
		bt.BankName,
		bt.AccountNumber,
		bt.Narration,
		bt.Status,
		jsonOrEmpty(bt.WebhookData),
	).Scan(&bt.ID, &bt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bank transaction %s: %w", bt.TransactionRef, err)
	}
	return nil
}

func (t *ledgerTx) InsertMpesaTransaction(ctx context.Context, mt *domain.MpesaTransaction) error {
	query := `
		INSERT INTO mpesa_transactions (
			mpesa_code, student_id, amount, transaction_date, phone_number, status, raw_callback
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := t.q.QueryRow(ctx, query,
		mt.MpesaCode,
		mt.StudentID,
		mt.Amount.String(),
		mt.TransactionDate,
		mt.PhoneNumber,
		mt.Status,
		jsonOrEmpty(mt.RawCallback),
	).Scan(&mt.ID, &mt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mpesa transaction %s: %w", mt.MpesaCode, err)
	}
	return nil
}

func (t *ledgerTx) InsertIncomingPayment(ctx context.Context, p *domain.IncomingPayment) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}

	query := `
		INSERT INTO payment_transactions (
			student_id, amount_paid, payment_date, payment_method,
			reference_no, receipt_no, status, notes
		) VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := t.q.QueryRow(ctx, query,
		p.StudentID,
		p.AmountPaid.String(),
		p.PaymentDate,
		string(p.PaymentMethod),
		p.ReferenceNo,
		p.ReceiptNo,
		string(p.Status),
		p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", p.ReferenceNo, err)
	}
	return nil
}

// DecrementFeeBalance reduces the running balance, creating the row when the
// student has none yet (an overpayment leaves a negative balance).
func (t *ledgerTx) DecrementFeeBalance(ctx context.Context, studentID int64, amount decimal.Decimal) error {
	query := `
		INSERT INTO student_fee_balances (student_id, balance, updated_at)
		VALUES ($1, -$2::numeric, NOW())
		ON CONFLICT (student_id)
		DO UPDATE SET balance = student_fee_balances.balance - $2::numeric, updated_at = NOW()
	`

	if _, err := t.q.Exec(ctx, query, studentID, amount.String()); err != nil {
		return fmt.Errorf("failed to update fee balance for student %d: %w", studentID, err)
	}
	return nil
}

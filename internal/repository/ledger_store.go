// internal/repository/ledger_store.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerStore is the durable financial state of record. Reads happen outside a
// transaction; every mutation of ledger or mirror tables goes through WithinTx.
type LedgerStore interface {
	FindDisbursement(ctx context.Context, keys domain.DisbursementKeys) (*domain.Disbursement, error)
	FindStudentByAdmission(ctx context.Context, admissionNo string) (*domain.Student, error)
	AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.WebhookAudit, error)
	CountAuditByStatus(ctx context.Context, since time.Time, statuses []domain.AuditStatus) (map[domain.AuditStatus]int64, error)

	// WithinTx runs fn in a single unit of work. A non-nil error from fn rolls
	// everything back.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of writes allowed inside a reconciliation transaction.
type LedgerTx interface {
	LockDisbursement(ctx context.Context, id int64) (*domain.Disbursement, error)
	CompleteDisbursement(ctx context.Context, id int64, c *domain.DisbursementCompletion) error
	FailDisbursement(ctx context.Context, id int64, f *domain.DisbursementFailure) error
	RecordDisbursementTimeout(ctx context.Context, id int64, retryCount int, desc string, raw json.RawMessage) error
	UpdateDisbursementMirror(ctx context.Context, d *domain.Disbursement, u *domain.MirrorUpdate) error

	PaymentExists(ctx context.Context, referenceNo string, method domain.PaymentMethod) (bool, error)
	BankTransactionExists(ctx context.Context, transactionRef string) (bool, error)
	InsertBankTransaction(ctx context.Context, bt *domain.BankTransaction) error
	InsertMpesaTransaction(ctx context.Context, mt *domain.MpesaTransaction) error
	InsertIncomingPayment(ctx context.Context, p *domain.IncomingPayment) error
	DecrementFeeBalance(ctx context.Context, studentID int64, amount decimal.Decimal) error

	AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ledgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) LedgerStore {
	return &ledgerStore{db: db}
}

func (s *ledgerStore) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{q: tx}); err != nil {
		return mapPGError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPGError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *ledgerStore) FindDisbursement(ctx context.Context, keys domain.DisbursementKeys) (*domain.Disbursement, error) {
	return findDisbursement(ctx, s.db, keys)
}

func (s *ledgerStore) FindStudentByAdmission(ctx context.Context, admissionNo string) (*domain.Student, error) {
	return findStudentByAdmission(ctx, s.db, admissionNo)
}

func (s *ledgerStore) AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error {
	return appendAudit(ctx, s.db, entry)
}

func (s *ledgerStore) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.WebhookAudit, error) {
	return listAudit(ctx, s.db, filter)
}

func (s *ledgerStore) CountAuditByStatus(ctx context.Context, since time.Time, statuses []domain.AuditStatus) (map[domain.AuditStatus]int64, error) {
	return countAuditByStatus(ctx, s.db, since, statuses)
}

// ledgerTx binds the shared query functions to an open pgx transaction.
type ledgerTx struct {
	q querier
}

func (t *ledgerTx) AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error {
	return appendAudit(ctx, t.q, entry)
}

// mapPGError turns a unique violation into ErrDuplicateReference so the loser of
// a concurrent delivery race is reported as already processed.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, pgErr.ConstraintName)
	}
	return err
}

func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

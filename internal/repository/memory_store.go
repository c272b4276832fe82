package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/shopspring/decimal"
)

// MirrorRow is the in-memory form of a staff_payments / supplier_payments row.
type MirrorRow struct {
	DisbursementID int64
	Status         string
	MpesaReceipt   string
	BankReference  string
	Charges        decimal.Decimal
	Date           *time.Time
	Notes          string
}

type memState struct {
	nextID        int64
	students      map[int64]domain.Student
	disbursements map[int64]domain.Disbursement
	mirrors       map[int64]MirrorRow
	payments      []domain.IncomingPayment
	bankTxs       []domain.BankTransaction
	mpesaTxs      []domain.MpesaTransaction
	audit         []domain.WebhookAudit
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:        s.nextID,
		students:      make(map[int64]domain.Student, len(s.students)),
		disbursements: make(map[int64]domain.Disbursement, len(s.disbursements)),
		mirrors:       make(map[int64]MirrorRow, len(s.mirrors)),
		payments:      append([]domain.IncomingPayment(nil), s.payments...),
		bankTxs:       append([]domain.BankTransaction(nil), s.bankTxs...),
		mpesaTxs:      append([]domain.MpesaTransaction(nil), s.mpesaTxs...),
		audit:         append([]domain.WebhookAudit(nil), s.audit...),
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.disbursements {
		c.disbursements[k] = v
	}
	for k, v := range s.mirrors {
		c.mirrors[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// MemoryStore is a LedgerStore kept in process memory. Transactions are
// serialized and applied copy-on-write, so a failed unit of work leaves no trace.
// It backs STORE_DRIVER=memory and the engine tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			students:      make(map[int64]domain.Student),
			disbursements: make(map[int64]domain.Disbursement),
			mirrors:       make(map[int64]MirrorRow),
		},
		now: time.Now,
	}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(&memTx{state: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) FindDisbursement(ctx context.Context, keys domain.DisbursementKeys) (*domain.Disbursement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keys.IsEmpty() {
		return nil, domain.ErrNotFound
	}

	var found *domain.Disbursement
	for _, d := range m.state.disbursements {
		if matchesKeys(&d, keys) && (found == nil || d.ID > found.ID) {
			d := d
			found = &d
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func matchesKeys(d *domain.Disbursement, k domain.DisbursementKeys) bool {
	eq := func(p *string, v string) bool { return v != "" && p != nil && *p == v }
	return eq(d.ConversationID, k.ConversationID) ||
		eq(d.OriginatorConversationID, k.OriginatorConversationID) ||
		eq(d.RequestID, k.RequestID) ||
		eq(d.TransactionRef, k.TransactionRef)
}

func (m *MemoryStore) FindStudentByAdmission(ctx context.Context, admissionNo string) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	admissionNo = strings.TrimSpace(admissionNo)
	for _, s := range m.state.students {
		if admissionNo != "" && strings.EqualFold(s.AdmissionNo, admissionNo) {
			s := s
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryStore) AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memAppendAudit(m.state, entry, m.now())
}

func (m *MemoryStore) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.WebhookAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filter.Normalize()
	var out []*domain.WebhookAudit
	for i := len(m.state.audit) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		e := m.state.audit[i]
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

func (m *MemoryStore) CountAuditByStatus(ctx context.Context, since time.Time, statuses []domain.AuditStatus) (map[domain.AuditStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.AuditStatus]int64, len(statuses))
	for _, s := range statuses {
		counts[s] = 0
	}
	for _, e := range m.state.audit {
		if e.CreatedAt.Before(since) {
			continue
		}
		if _, ok := counts[e.Status]; ok {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func memAppendAudit(s *memState, entry *domain.WebhookAudit, now time.Time) error {
	entry.Sanitize()
	if err := checkJSONB(entry.WebhookData); err != nil {
		return fmt.Errorf("failed to append webhook audit: %w", err)
	}
	entry.ID = s.id()
	entry.CreatedAt = now
	s.audit = append(s.audit, *entry)
	return nil
}

// checkJSONB applies the input rules Postgres enforces on JSONB columns.
func checkJSONB(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	if !utf8.Valid(data) {
		return errors.New("invalid byte sequence for encoding UTF8")
	}
	if bytes.Contains(data, []byte(`\u0000`)) {
		return errors.New("unsupported Unicode escape sequence")
	}
	if !json.Valid(data) {
		return errors.New("invalid input syntax for type json")
	}
	return nil
}

// Seeding and inspection helpers.

// SeedStudent stores a student and returns it with its assigned id.
func (m *MemoryStore) SeedStudent(s domain.Student) domain.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.state.id()
	if s.Status == "" {
		s.Status = domain.StudentActive
	}
	m.state.students[s.ID] = s
	return s
}

// SeedDisbursement stores a disbursement, plus a pending mirror row for salary and supplier types.
func (m *MemoryStore) SeedDisbursement(d domain.Disbursement) domain.Disbursement {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.state.id()
	if d.Status == "" {
		d.Status = domain.DisbursementPending
	}
	d.CreatedAt = m.now()
	d.UpdatedAt = d.CreatedAt
	m.state.disbursements[d.ID] = d
	if d.HasMirror() {
		m.state.mirrors[d.ID] = MirrorRow{DisbursementID: d.ID, Status: "pending"}
	}
	return d
}

func (m *MemoryStore) Disbursement(id int64) (domain.Disbursement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.state.disbursements[id]
	return d, ok
}

// SetDisbursementStatus overwrites a row's status, as the upstream payout job
// does when it re-queues a timed-out request.
func (m *MemoryStore) SetDisbursementStatus(id int64, status domain.DisbursementStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.state.disbursements[id]; ok {
		d.Status = status
		m.state.disbursements[id] = d
	}
}

func (m *MemoryStore) Mirror(disbursementID int64) (MirrorRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.mirrors[disbursementID]
	return r, ok
}

func (m *MemoryStore) Student(id int64) (domain.Student, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.students[id]
	return s, ok
}

func (m *MemoryStore) Payments() []domain.IncomingPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IncomingPayment(nil), m.state.payments...)
}

func (m *MemoryStore) BankTransactions() []domain.BankTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BankTransaction(nil), m.state.bankTxs...)
}

func (m *MemoryStore) MpesaTransactions() []domain.MpesaTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MpesaTransaction(nil), m.state.mpesaTxs...)
}

// AuditEntries returns the audit log oldest first.
func (m *MemoryStore) AuditEntries() []domain.WebhookAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.WebhookAudit(nil), m.state.audit...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memTx mutates a private copy of the state; MemoryStore swaps it in on success.
type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) LockDisbursement(ctx context.Context, id int64) (*domain.Disbursement, error) {
	d, ok := t.state.disbursements[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (t *memTx) CompleteDisbursement(ctx context.Context, id int64, c *domain.DisbursementCompletion) error {
	d, ok := t.state.disbursements[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DisbursementCompleted
	if c.TransactionRef != "" {
		d.TransactionRef = strPtr(c.TransactionRef)
	}
	if c.TransactionID != "" {
		d.TransactionID = strPtr(c.TransactionID)
	}
	d.ResultDescription = strPtr(c.ResultDescription)
	d.BankCharges = c.BankCharges
	d.CallbackData = c.CallbackData
	completed := c.CompletedAt
	d.CompletedAt = &completed
	d.UpdatedAt = t.now()
	t.state.disbursements[id] = d
	return nil
}

func (t *memTx) FailDisbursement(ctx context.Context, id int64, f *domain.DisbursementFailure) error {
	d, ok := t.state.disbursements[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DisbursementFailed
	d.ResultDescription = strPtr(f.ResultDescription)
	if f.Notes != "" {
		d.Notes = strPtr(f.Notes)
	}
	d.CallbackData = f.CallbackData
	failed := f.FailedAt
	d.FailedAt = &failed
	d.UpdatedAt = t.now()
	t.state.disbursements[id] = d
	return nil
}

func (t *memTx) RecordDisbursementTimeout(ctx context.Context, id int64, retryCount int, desc string, raw json.RawMessage) error {
	d, ok := t.state.disbursements[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DisbursementTimedOut
	d.RetryCount = retryCount
	d.ResultDescription = strPtr(desc)
	d.CallbackData = raw
	d.UpdatedAt = t.now()
	t.state.disbursements[id] = d
	return nil
}

func (t *memTx) UpdateDisbursementMirror(ctx context.Context, d *domain.Disbursement, u *domain.MirrorUpdate) error {
	if !d.HasMirror() {
		return nil
	}
	row, ok := t.state.mirrors[d.ID]
	if !ok {
		return nil
	}
	row.Status = string(u.Status)
	switch u.Rail {
	case domain.RailMpesa:
		if u.Reference != "" {
			row.MpesaReceipt = u.Reference
		}
	case domain.RailBank:
		if u.Reference != "" {
			row.BankReference = u.Reference
		}
	}
	row.Charges = u.Charges
	if u.Status == domain.MirrorCompleted {
		at := u.At
		row.Date = &at
	}
	if u.Notes != "" {
		row.Notes = u.Notes
	}
	t.state.mirrors[d.ID] = row
	return nil
}

func (t *memTx) PaymentExists(ctx context.Context, referenceNo string, method domain.PaymentMethod) (bool, error) {
	for _, p := range t.state.payments {
		if p.ReferenceNo == referenceNo && p.PaymentMethod == method {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) BankTransactionExists(ctx context.Context, transactionRef string) (bool, error) {
	for _, bt := range t.state.bankTxs {
		if bt.TransactionRef == transactionRef {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBankTransaction(ctx context.Context, bt *domain.BankTransaction) error {
	if exists, _ := t.BankTransactionExists(ctx, bt.TransactionRef); exists {
		return fmt.Errorf("%w: bank_transactions.transaction_ref", domain.ErrDuplicateReference)
	}
	bt.ID = t.state.id()
	bt.CreatedAt = t.now()
	t.state.bankTxs = append(t.state.bankTxs, *bt)
	return nil
}

func (t *memTx) InsertMpesaTransaction(ctx context.Context, mt *domain.MpesaTransaction) error {
	for _, existing := range t.state.mpesaTxs {
		if existing.MpesaCode == mt.MpesaCode {
			return fmt.Errorf("%w: mpesa_transactions.mpesa_code", domain.ErrDuplicateReference)
		}
	}
	mt.ID = t.state.id()
	mt.CreatedAt = t.now()
	t.state.mpesaTxs = append(t.state.mpesaTxs, *mt)
	return nil
}

func (t *memTx) InsertIncomingPayment(ctx context.Context, p *domain.IncomingPayment) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}
	if exists, _ := t.PaymentExists(ctx, p.ReferenceNo, p.PaymentMethod); exists {
		return fmt.Errorf("%w: payment_transactions.reference_no", domain.ErrDuplicateReference)
	}
	p.ID = t.state.id()
	p.CreatedAt = t.now()
	t.state.payments = append(t.state.payments, *p)
	return nil
}

func (t *memTx) DecrementFeeBalance(ctx context.Context, studentID int64, amount decimal.Decimal) error {
	s, ok := t.state.students[studentID]
	if !ok {
		return fmt.Errorf("student %d: %w", studentID, domain.ErrNotFound)
	}
	s.Balance = s.Balance.Sub(amount)
	t.state.students[studentID] = s
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *domain.WebhookAudit) error {
	return memAppendAudit(t.state, entry, t.now())
}

func strPtr(s string) *string { return &s }

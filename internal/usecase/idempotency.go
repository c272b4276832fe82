package usecase

import (
	"context"
	"errors"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"

	"go.uber.org/zap"
)

// errAlreadyApplied aborts a transaction whose in-transaction recheck found
// the event already applied by a concurrent delivery.
var errAlreadyApplied = errors.New("event already applied")

// ReferenceCache is the optional fast path in front of the ledger checks.
type ReferenceCache interface {
	Seen(ctx context.Context, channel, reference string) (bool, error)
	Remember(ctx context.Context, channel, reference string) error
}

const channelDisbursement = "disbursement"

func collectionChannel(m domain.PaymentMethod) string {
	return "collection:" + string(m)
}

// IdempotencyGuard decides whether an event was already durably applied.
// The authoritative checks run inside the ledger transaction against locked or
// unique-indexed rows; the cache only short-circuits known redeliveries.
type IdempotencyGuard struct {
	cache  ReferenceCache
	logger *zap.Logger
}

func NewIdempotencyGuard(cache ReferenceCache, logger *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{cache: cache, logger: logger}
}

// Seen consults the cache. Cache errors count as a miss.
func (g *IdempotencyGuard) Seen(ctx context.Context, channel, ref string) bool {
	if g.cache == nil || ref == "" {
		return false
	}
	seen, err := g.cache.Seen(ctx, channel, ref)
	if err != nil {
		g.logger.Warn("reference cache unavailable", zap.String("channel", channel), zap.Error(err))
		return false
	}
	return seen
}

// Remember is called after commit only.
func (g *IdempotencyGuard) Remember(ctx context.Context, channel, ref string) error {
	if g.cache == nil || ref == "" {
		return nil
	}
	return g.cache.Remember(ctx, channel, ref)
}

// DisbursementApplied is true once a result has moved the row to a terminal status.
func (g *IdempotencyGuard) DisbursementApplied(d *domain.Disbursement) bool {
	return d.Status.IsTerminal()
}

// TimeoutApplied is true for any row no longer pending: a timeout already
// recorded, or a result that beat the timeout.
func (g *IdempotencyGuard) TimeoutApplied(d *domain.Disbursement) bool {
	return d.Status != domain.DisbursementPending
}

// CollectionApplied checks reference_no + payment_method, and the bank
// transaction ref for channels that keep a bank mirror. Must run inside tx.
func (g *IdempotencyGuard) CollectionApplied(ctx context.Context, tx repository.LedgerTx, c *domain.Collection) (bool, error) {
	exists, err := tx.PaymentExists(ctx, c.Reference, c.Method)
	if err != nil || exists {
		return exists, err
	}
	if c.RecordsBankTransaction() {
		return tx.BankTransactionExists(ctx, c.Reference)
	}
	return false, nil
}

// IsDuplicate reports whether a transaction error means "someone else applied
// this first": the in-transaction recheck or a unique constraint.
func IsDuplicate(err error) bool {
	return errors.Is(err, errAlreadyApplied) || errors.Is(err, domain.ErrDuplicateReference)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

// ListAudit returns the newest audit rows matching filter.
func (uc *ReconcileUsecase) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.WebhookAudit, error) {
	filter.Normalize()
	entries, err := uc.store.ListAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}

// RecoveryBacklog counts audit rows since now-window that still need a human.
func (uc *ReconcileUsecase) RecoveryBacklog(ctx context.Context, window time.Duration) (map[domain.AuditStatus]int64, error) {
	counts, err := uc.store.CountAuditByStatus(ctx, uc.now().Add(-window), domain.RecoveryStatuses)
	if err != nil {
		return nil, fmt.Errorf("count audit: %w", err)
	}
	return counts, nil
}

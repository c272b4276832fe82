package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

func appendAudit(ctx context.Context, q querier, entry *domain.WebhookAudit) error {
	entry.Sanitize()

	query := `
		INSERT INTO payment_webhooks_log (source, reference, status, webhook_data, signature, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		string(entry.Source),
		entry.Reference,
		string(entry.Status),
		jsonOrEmpty(entry.WebhookData),
		nullIfEmpty(entry.Signature),
		nullIfEmpty(entry.ErrorMessage),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append webhook audit: %w", err)
	}
	return nil
}

func listAudit(ctx context.Context, q querier, filter domain.AuditFilter) ([]*domain.WebhookAudit, error) {
	filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `
		SELECT id, source, reference, status, webhook_data::text,
			COALESCE(signature, ''), COALESCE(error_message, ''), created_at
		FROM payment_webhooks_log`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf("\n\t\tORDER BY id DESC\n\t\tLIMIT $%d", len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook audit: %w", err)
	}
	defer rows.Close()

	var entries []*domain.WebhookAudit
	for rows.Next() {
		var (
			e    domain.WebhookAudit
			data string
		)
		if err := rows.Scan(
			&e.ID,
			&e.Source,
			&e.Reference,
			&e.Status,
			&data,
			&e.Signature,
			&e.ErrorMessage,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook audit: %w", err)
		}
		e.WebhookData = []byte(data)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func countAuditByStatus(ctx context.Context, q querier, since time.Time, statuses []domain.AuditStatus) (map[domain.AuditStatus]int64, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := q.Query(ctx, `
		SELECT status, COUNT(*)
		FROM payment_webhooks_log
		WHERE created_at >= $1 AND status = ANY($2)
		GROUP BY status
	`, since, names)
	if err != nil {
		return nil, fmt.Errorf("failed to count webhook audit: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AuditStatus]int64, len(statuses))
	for _, s := range statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan webhook audit count: %w", err)
		}
		counts[domain.AuditStatus(status)] = n
	}
	return counts, rows.Err()
}

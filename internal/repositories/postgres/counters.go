package postgres

import (
	"context"
	"strings"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

type counterRepository struct{ r *Registry }

// Next upserts the counter row and returns the incremented value in one statement.
func (c counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "", "counter id is required")
	}
	if step <= 0 {
		step = 1
	}
	q, _ := c.r.conn(ctx)
	var next int64
	err := q.QueryRow(ctx, `INSERT INTO counters (id, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET value = counters.value + EXCLUDED.value, updated_at = NOW()
		RETURNING value`, id, step).Scan(&next)
	return next, wrapError("counters.next", err)
}

type auditLogRepository struct{ r *Registry }

func (a auditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	q, _ := a.r.conn(ctx)
	_, err := q.Exec(ctx, `INSERT INTO audit_logs (id, actor, action, target_ref, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Actor, entry.Action, entry.TargetRef, metadata, entry.OccurredAt.UTC())
	return wrapError("audit_logs.append", err)
}

package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

type auditLogDocument struct {
	Actor      string         `firestore:"actor"`
	Action     string         `firestore:"action"`
	TargetRef  string         `firestore:"targetRef"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	OccurredAt time.Time      `firestore:"occurredAt"`
}

// AuditLogRepository appends entries to the auditLogs collection.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{base: pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection)}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	return r.base.Create(ctx, entry.ID, auditLogDocument{
		Actor:      entry.Actor,
		Action:     entry.Action,
		TargetRef:  entry.TargetRef,
		Metadata:   entry.Metadata,
		OccurredAt: entry.OccurredAt.UTC(),
	})
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crackersbazaar/api/internal/domain"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func TestAuditLogServiceRecordSanitizesAndHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	fixed := time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return fixed },
		IDGenerator: func() string { return "audit-1" },
		HashSalt:    "pepper:",
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:                 "  admin-1 ",
		Action:                " manufacturer.password.reset\x00 ",
		TargetRef:             "manufacturers/mf-1",
		Metadata:              map[string]any{"email": "maker@example.com", "status": "APPROVED", " ": "dropped"},
		SensitiveMetadataKeys: []string{"Email"},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "audit-1" || entry.Actor != "admin-1" || entry.Action != "manufacturer.password.reset" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.OccurredAt.Equal(fixed) {
		t.Fatalf("expected occurred at %s, got %s", fixed, entry.OccurredAt)
	}
	email, _ := entry.Metadata["email"].(string)
	if !strings.HasPrefix(email, hashedValuePrefix) || strings.Contains(email, "maker") {
		t.Fatalf("expected hashed email, got %q", email)
	}
	if entry.Metadata["status"] != "APPROVED" {
		t.Fatalf("expected status kept, got %v", entry.Metadata["status"])
	}
	if len(entry.Metadata) != 2 {
		t.Fatalf("expected blank key dropped, got %v", entry.Metadata)
	}
}

func TestAuditLogServiceRecordSwallowsRepositoryErrors(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("firestore down")}
	var events []string
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{Action: "order.delete"})

	if len(events) != 1 || events[0] != "audit.append.failed" {
		t.Fatalf("expected failure to be logged, got %v", events)
	}
	if repo.entries[0].Actor != "system" {
		t.Fatalf("expected default actor, got %q", repo.entries[0].Actor)
	}
}

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

const hashedValuePrefix = "sha256:"

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	HashSalt    string
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	hashSalt string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit entry after sanitising it. Repository failures are logged, never returned.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append.failed", map[string]any{
			"action": entry.Action,
			"target": entry.TargetRef,
			"error":  err.Error(),
		})
	}
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}
	entry := domain.AuditLogEntry{
		ID:         s.newID(),
		Actor:      sanitizeText(record.Actor, 160),
		Action:     sanitizeText(record.Action, 120),
		TargetRef:  sanitizeText(record.TargetRef, 200),
		OccurredAt: occurred.UTC(),
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if len(record.Metadata) == 0 {
		return entry
	}

	sensitive := make(map[string]bool, len(record.SensitiveMetadataKeys))
	for _, key := range record.SensitiveMetadataKeys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = true
	}
	entry.Metadata = make(map[string]any, len(record.Metadata))
	for key, value := range record.Metadata {
		key = sanitizeText(key, 80)
		if key == "" {
			continue
		}
		if sensitive[strings.ToLower(key)] {
			entry.Metadata[key] = hashedValuePrefix + s.hash(value)
			continue
		}
		switch v := value.(type) {
		case string:
			entry.Metadata[key] = sanitizeText(v, 512)
		case fmt.Stringer:
			entry.Metadata[key] = sanitizeText(v.String(), 512)
		default:
			entry.Metadata[key] = v
		}
	}
	return entry
}

func (s *auditLogService) hash(value any) string {
	var raw string
	switch v := value.(type) {
	case string:
		raw = strings.TrimSpace(v)
	case fmt.Stringer:
		raw = v.String()
	default:
		if b, err := json.Marshal(v); err == nil {
			raw = string(b)
		} else {
			raw = fmt.Sprintf("%v", v)
		}
	}
	sum := sha256.Sum256([]byte(s.hashSalt + raw))
	return hex.EncodeToString(sum[:])
}

// sanitizeText trims input, drops control characters other than whitespace, and cuts it to limit runes.
func sanitizeText(input string, limit int) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	count := 0
	for _, r := range input {
		if r == utf8.RuneError || (r < 32 && r != '\n' && r != '\t') {
			continue
		}
		if count == limit {
			break
		}
		builder.WriteRune(r)
		count++
	}
	return builder.String()
}

package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessChecker reports dependency health for /readyz.
type ReadinessChecker interface {
	Run(ctx context.Context) repositories.ReadinessReport
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build BuildInfo
	probe ReadinessChecker
	clock func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithReadinessProbe sets the dependency probe used by /readyz.
func WithReadinessProbe(probe ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		h.probe = probe
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers. Without a probe /readyz always reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    repositories.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

type readinessCheckPayload struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type readinessPayload struct {
	Status    string                           `json:"status"`
	Checks    map[string]readinessCheckPayload `json:"checks"`
	Details   []string                         `json:"details,omitempty"`
	Timestamp string                           `json:"timestamp"`
}

// Readyz runs dependency checks and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	report := repositories.ReadinessReport{Status: repositories.HealthStatusOK}
	if h.probe != nil {
		report = h.probe.Run(r.Context())
	}

	payload := readinessPayload{
		Status:    report.Status,
		Checks:    make(map[string]readinessCheckPayload, len(report.Checks)),
		Timestamp: h.clock().UTC().Format(time.RFC3339),
	}
	for name, result := range report.Checks {
		payload.Checks[name] = readinessCheckPayload{
			Status:    result.Status,
			LatencyMS: result.Latency.Milliseconds(),
			Error:     result.Error,
		}
		if result.Error != "" {
			payload.Details = append(payload.Details, name+": "+result.Error)
		}
	}
	sort.Strings(payload.Details)

	status := http.StatusOK
	if report.Status != repositories.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}

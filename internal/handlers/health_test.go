package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crackersbazaar/api/internal/repositories"
)

type staticReadiness repositories.ReadinessReport

func (s staticReadiness) Run(context.Context) repositories.ReadinessReport {
	return repositories.ReadinessReport(s)
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != repositories.HealthStatusOK {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
	if body["version"] != "1.0.0" || body["commitSha"] != "abc123" || body["environment"] != "prod" {
		t.Fatalf("unexpected build metadata: %v", body)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("all checks ok", func(t *testing.T) {
		handlers := NewHealthHandlers(
			WithReadinessProbe(staticReadiness{
				Status: repositories.HealthStatusOK,
				Checks: map[string]repositories.DependencyResult{
					"postgres": {Status: repositories.HealthStatusOK, Latency: 3 * time.Millisecond},
				},
			}),
			WithHealthClock(func() time.Time { return now }),
		)
		rr := httptest.NewRecorder()
		handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		body := decodeBody(t, rr)
		checks, ok := body["checks"].(map[string]any)
		if !ok {
			t.Fatalf("expected checks map, got %T", body["checks"])
		}
		pg, ok := checks["postgres"].(map[string]any)
		if !ok || pg["latencyMs"] != float64(3) {
			t.Fatalf("unexpected postgres check: %v", checks["postgres"])
		}
	})

	t.Run("failing dependency", func(t *testing.T) {
		handlers := NewHealthHandlers(
			WithReadinessProbe(staticReadiness{
				Status: repositories.HealthStatusError,
				Checks: map[string]repositories.DependencyResult{
					"postgres": {Status: repositories.HealthStatusOK},
					"redis":    {Status: repositories.HealthStatusError, Error: "connection refused"},
				},
			}),
			WithHealthClock(func() time.Time { return now }),
		)
		rr := httptest.NewRecorder()
		handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		body := decodeBody(t, rr)
		details, ok := body["details"].([]any)
		if !ok || len(details) != 1 || details[0] != "redis: connection refused" {
			t.Fatalf("unexpected details: %v", body["details"])
		}
	})
}

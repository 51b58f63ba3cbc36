package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// Health statuses reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyCheck describes a dependency probe executed during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyResult is the outcome of a single DependencyCheck.
type DependencyResult struct {
	Status  string
	Error   string
	Latency time.Duration
}

// ReadinessReport aggregates dependency results.
type ReadinessReport struct {
	Status string
	Checks map[string]DependencyResult
}

// ReadinessProbe evaluates dependency checks concurrently, each under its own timeout.
type ReadinessProbe struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewReadinessProbe constructs a probe over the supplied checks. Checks without a name or function are dropped.
func NewReadinessProbe(checks ...DependencyCheck) *ReadinessProbe {
	probe := &ReadinessProbe{timeout: defaultDependencyTimeout, now: time.Now}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" || check.Check == nil {
			continue
		}
		probe.checks = append(probe.checks, check)
	}
	return probe
}

// RegistryCheck adapts a repository registry ping into a dependency check.
func RegistryCheck(name string, reg Registry) DependencyCheck {
	return DependencyCheck{Name: name, Check: func(ctx context.Context) error {
		if reg == nil {
			return errors.New("registry not configured")
		}
		return reg.Ping(ctx)
	}}
}

// Run executes every check and returns the aggregated report.
func (p *ReadinessProbe) Run(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Status: HealthStatusOK, Checks: map[string]DependencyResult{}}
	if p == nil || len(p.checks) == 0 {
		return report
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	wg.Add(len(p.checks))
	for _, check := range p.checks {
		go func(check DependencyCheck) {
			defer wg.Done()

			timeout := check.Timeout
			if timeout <= 0 {
				timeout = p.timeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := p.now()
			err := check.Check(checkCtx)
			result := DependencyResult{Status: HealthStatusOK, Latency: p.now().Sub(start)}
			switch {
			case err == nil && checkCtx.Err() != nil:
				result.Status = HealthStatusError
				result.Error = checkCtx.Err().Error()
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				result.Status = HealthStatusError
				result.Error = err.Error()
			case err != nil:
				result.Status = HealthStatusDegraded
				result.Error = err.Error()
			}

			mu.Lock()
			report.Checks[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	for _, result := range report.Checks {
		if result.Status == HealthStatusError {
			report.Status = HealthStatusError
			break
		}
		if result.Status == HealthStatusDegraded {
			report.Status = HealthStatusDegraded
		}
	}
	return report
}

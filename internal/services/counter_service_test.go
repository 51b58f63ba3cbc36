package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crackersbazaar/api/internal/repositories"
)

type stubCounterRepository struct {
	mu        sync.Mutex
	nextFn    func(context.Context, string, int64) (int64, error)
	nextCalls []counterCall
}

type counterCall struct {
	ID   string
	Step int64
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	s.nextCalls = append(s.nextCalls, counterCall{ID: counterID, Step: step})
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func TestCounterServiceNextOrderNumber(t *testing.T) {
	repo := &stubCounterRepository{}
	repo.nextFn = func(context.Context, string, int64) (int64, error) {
		return 10042, nil
	}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo, Clock: func() time.Time {
		return time.Date(2024, 10, 20, 18, 5, 9, 0, time.FixedZone("IST", 5*3600+1800))
	}})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	number, err := svc.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != "ORD202410201235090042" {
		t.Fatalf("unexpected order number %s", number)
	}
	if len(repo.nextCalls) != 1 || repo.nextCalls[0] != (counterCall{ID: "orders:number", Step: 1}) {
		t.Fatalf("unexpected counter calls %+v", repo.nextCalls)
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	tests := []struct {
		name string
		code repositories.CounterErrorCode
		want error
	}{
		{name: "invalid", code: repositories.CounterErrorInvalidInput, want: ErrCounterInvalidInput},
		{name: "exhausted", code: repositories.CounterErrorExhausted, want: ErrCounterExhausted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubCounterRepository{nextFn: func(_ context.Context, id string, _ int64) (int64, error) {
				return 0, repositories.NewCounterError(tc.code, id, "")
			}}
			svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
			if err != nil {
				t.Fatalf("new counter service: %v", err)
			}
			if _, err := svc.Next(context.Background(), "orders", "number", 1); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCounterServiceRequiresScopeAndName(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	if _, err := svc.Next(context.Background(), " ", "number", 1); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for empty scope, got %v", err)
	}
	if _, err := svc.Next(context.Background(), "orders", "", 1); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for empty name, got %v", err)
	}
}

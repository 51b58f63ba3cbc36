package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crackersbazaar/api/internal/repositories"
)

const (
	orderNumberPrefix    = "ORD"
	orderNumberCounterID = "orders:number"
	orderNumberModulus   = 10000
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the counter cannot increment further.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

// CounterService hands out monotonic sequence values and the order numbers derived from them.
type CounterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time
}

var _ OrderNumberGenerator = (*CounterService)(nil)

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (*CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &CounterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Next increments the scope:name counter by step (1 when step is not positive).
func (s *CounterService) Next(ctx context.Context, scope, name string, step int64) (int64, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return 0, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, scope+":"+name, step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return 0, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return 0, err
	}
	return value, nil
}

// NextOrderNumber returns "ORD" followed by the UTC timestamp (yyyyMMddHHmmss) and the low four digits of
// the order sequence. Numbers stay unique unless more than ten thousand orders share one second.
func (s *CounterService) NextOrderNumber(ctx context.Context) (string, error) {
	scope, name, _ := strings.Cut(orderNumberCounterID, ":")
	seq, err := s.Next(ctx, scope, name, 1)
	if err != nil {
		return "", err
	}
	return formatOrderNumber(s.clock(), seq), nil
}

func formatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%04d", orderNumberPrefix, at.UTC().Format("20060102150405"), seq%orderNumberModulus)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/doxvisum/api/internal/repositories"
)

const (
	defaultOrderNumberPrefix = "DOX"
	orderCounterScope        = "orders"
	// Order numbers carry a six digit sequence.
	maxOrderSequence int64 = 999999
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates a year's order sequence has run out of numbers.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	// OrderPrefix leads every order number, e.g. "DOX" in DOX-2026-000042.
	OrderPrefix string
	Clock       func() time.Time
}

type counterService struct {
	repo        repositories.CounterRepository
	orderPrefix string
	clock       func() time.Time

	mu      sync.Mutex
	bounded map[int]bool
}

// NewCounterService constructs the order number allocator.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.OrderPrefix))
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	return &counterService{
		repo:        deps.Repository,
		orderPrefix: prefix,
		clock:       func() time.Time { return clock().UTC() },
		bounded:     make(map[int]bool),
	}, nil
}

// NextOrderNumber returns e.g. DOX-2026-000042. Each UTC year has its own sequence starting at 1.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	year := s.clock().Year()
	id := orderCounterID(year)

	if err := s.ensureBound(ctx, year); err != nil {
		return "", err
	}
	seq, err := s.repo.Next(ctx, id, 1)
	if err != nil {
		return "", mapCounterError(err)
	}
	return fmt.Sprintf("%s-%04d-%06d", s.orderPrefix, year, seq), nil
}

func (s *counterService) SeedOrderSequence(ctx context.Context, year int, lastIssued int64) error {
	if year < 2000 || year > 9999 {
		return fmt.Errorf("%w: year %d is out of range", ErrCounterInvalidInput, year)
	}
	if lastIssued < 0 || lastIssued >= maxOrderSequence {
		return fmt.Errorf("%w: last issued number %d is out of range", ErrCounterInvalidInput, lastIssued)
	}
	limit := maxOrderSequence
	err := s.repo.Configure(ctx, orderCounterID(year), repositories.CounterConfig{
		Step:         1,
		MaxValue:     &limit,
		InitialValue: &lastIssued,
	})
	if err != nil {
		return mapCounterError(err)
	}
	s.mu.Lock()
	s.bounded[year] = true
	s.mu.Unlock()
	return nil
}

// ensureBound writes the six digit ceiling once per year and process.
func (s *counterService) ensureBound(ctx context.Context, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bounded[year] {
		return nil
	}
	limit := maxOrderSequence
	if err := s.repo.Configure(ctx, orderCounterID(year), repositories.CounterConfig{Step: 1, MaxValue: &limit}); err != nil {
		return mapCounterError(err)
	}
	s.bounded[year] = true
	return nil
}

func orderCounterID(year int) string {
	return fmt.Sprintf("%s:%04d", orderCounterScope, year)
}

func mapCounterError(err error) error {
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) {
		return err
	}
	switch counterErr.Code {
	case repositories.CounterErrorInvalidInput:
		return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
	case repositories.CounterErrorExhausted:
		return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
	}
	return err
}

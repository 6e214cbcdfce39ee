package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
// ReuseFor lets readiness probes that arrive close together share one dependency sweep.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	ReuseFor         time.Duration
}

type systemService struct {
	health   repositories.HealthRepository
	clock    func() time.Time
	build    BuildInfo
	reuseFor time.Duration

	inflight singleflight.Group
	mu       sync.Mutex
	last     domain.SystemHealthReport
	lastAt   time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing the readiness probe.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock().UTC()
	}
	return &systemService{
		health:   deps.HealthRepository,
		clock:    func() time.Time { return clock().UTC() },
		build:    build,
		reuseFor: max(deps.ReuseFor, 0),
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	now := s.clock()
	if report, ok := s.recent(now); ok {
		return s.stamp(report, now), nil
	}

	// concurrent probes share the first caller's sweep and its context
	value, err, _ := s.inflight.Do("health", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.last, s.lastAt = report, s.clock()
		s.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	return s.stamp(value.(domain.SystemHealthReport), s.clock()), nil
}

func (s *systemService) recent(now time.Time) (domain.SystemHealthReport, bool) {
	if s.reuseFor <= 0 {
		return domain.SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAt.IsZero() || now.Sub(s.lastAt) >= s.reuseFor {
		return domain.SystemHealthReport{}, false
	}
	return s.last, true
}

// stamp fills build metadata without overriding what the repository reported.
func (s *systemService) stamp(report domain.SystemHealthReport, now time.Time) domain.SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = deriveStatus(report.Checks)
	}
	return report
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}

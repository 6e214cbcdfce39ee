package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/doxvisum/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck is a single readiness probe. A failing required probe marks the report as
// error; a failing optional probe only degrades it.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Optional bool
	Check    func(context.Context) error
}

// DependencyHealthOption customises NewDependencyHealthRepository.
type DependencyHealthOption func(*probeSet)

// WithDependencyTimeout sets the timeout for probes that do not carry their own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(p *probeSet) {
		if timeout > 0 {
			p.fallback = timeout
		}
	}
}

// WithDependencyClock overrides the clock used for latency and timestamps.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *probeSet) {
		if clock != nil {
			p.now = clock
		}
	}
}

type probeSet struct {
	probes   []DependencyCheck
	fallback time.Duration
	now      func() time.Time
}

var _ HealthRepository = (*probeSet)(nil)

// NewDependencyHealthRepository validates checks up front so Collect never has to.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	probes := make([]DependencyCheck, 0, len(checks))
	for _, check := range checks {
		check.Name = strings.TrimSpace(check.Name)
		switch {
		case check.Name == "":
			return nil, errors.New("health repository: dependency check missing name")
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
		if _, dup := seen[check.Name]; dup {
			return nil, fmt.Errorf("health repository: dependency %s registered twice", check.Name)
		}
		seen[check.Name] = struct{}{}
		probes = append(probes, check)
	}

	p := &probeSet{probes: probes, fallback: defaultProbeTimeout, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Collect runs every probe concurrently. Probe failures are reported in the result, never as
// the returned error.
func (p *probeSet) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make([]domain.SystemHealthCheck, len(p.probes))
	var g errgroup.Group
	for i, probe := range p.probes {
		g.Go(func() error {
			results[i] = p.run(ctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.SystemHealthCheck, len(results)),
		GeneratedAt: p.now(),
	}
	for i, result := range results {
		report.Checks[p.probes[i].Name] = result
		report.Status = worse(report.Status, result.Status)
	}
	return report, nil
}

func (p *probeSet) run(ctx context.Context, probe DependencyCheck) domain.SystemHealthCheck {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = p.fallback
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	err := probe.Check(probeCtx)
	if err == nil {
		// a probe that ignores its context can still overrun the deadline
		err = probeCtx.Err()
	}
	end := p.now()

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil {
		return result
	}

	result.Error = err.Error()
	result.Status = domain.HealthStatusError
	if probe.Optional {
		result.Status = domain.HealthStatusDegraded
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Detail = "cancelled"
	default:
		result.Detail = "unavailable"
	}
	return result
}

func worse(a, b string) string {
	rank := func(s string) int {
		switch s {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

package domain

import "time"

// Readiness states, ordered from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded" // an optional dependency failed
	HealthStatusError    = "error"    // a required dependency failed
)

// SystemHealthCheck is the result of probing one dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Serving reports whether the instance should keep receiving traffic.
func (r SystemHealthReport) Serving() bool {
	return r.Status != HealthStatusError
}

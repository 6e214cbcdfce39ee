package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/repositories"
)

const firestoreHealthTimeout = 1500 * time.Millisecond

// Registry bundles the Firestore-backed repositories and owns the provider lifecycle.
type Registry struct {
	provider *pfirestore.Provider
	rules    *PricingRuleRepository
	customer *CustomerRepository
	orders   *OrderRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// RegistryOption customises NewRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	clock        func() time.Time
	retry        []pfirestore.RetryOption
	extraChecks  []repositories.DependencyCheck
	healthClock  func() time.Time
	healthChecks bool
}

// WithRegistryClock sets the clock used for document timestamps.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(cfg *registryConfig) {
		if clock != nil {
			cfg.clock = clock
			cfg.healthClock = clock
		}
	}
}

// WithRegistryRetry sets the retry policy for rule and customer reads.
func WithRegistryRetry(opts ...pfirestore.RetryOption) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.retry = append(cfg.retry, opts...)
	}
}

// WithDependencyChecks adds readiness probes for collaborators outside Firestore, e.g. Pub/Sub.
func WithDependencyChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.extraChecks = append(cfg.extraChecks, checks...)
	}
}

// WithoutFirestoreHealthCheck skips the Firestore readiness probe.
func WithoutFirestoreHealthCheck() RegistryOption {
	return func(cfg *registryConfig) {
		cfg.healthChecks = false
	}
}

// NewRegistry constructs every repository on top of a shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	cfg := registryConfig{clock: time.Now, healthClock: time.Now, healthChecks: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rules, err := NewPricingRuleRepository(provider,
		WithPricingRuleClock(cfg.clock),
		WithPricingRuleRetry(cfg.retry...),
	)
	if err != nil {
		return nil, fmt.Errorf("pricing rule repository: %w", err)
	}
	customers, err := NewCustomerRepository(provider, cfg.retry...)
	if err != nil {
		return nil, fmt.Errorf("customer repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("order repository: %w", err)
	}
	counters, err := NewCounterRepository(provider, cfg.clock)
	if err != nil {
		return nil, fmt.Errorf("counter repository: %w", err)
	}

	checks := make([]repositories.DependencyCheck, 0, len(cfg.extraChecks)+1)
	if cfg.healthChecks {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: firestoreHealthTimeout,
			Check:   firestorePing(provider),
		})
	}
	checks = append(checks, cfg.extraChecks...)

	var health repositories.HealthRepository
	if len(checks) > 0 {
		health, err = repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(cfg.healthClock))
		if err != nil {
			return nil, fmt.Errorf("health repository: %w", err)
		}
	}

	return &Registry{
		provider: provider,
		rules:    rules,
		customer: customers,
		orders:   orders,
		counters: counters,
		health:   health,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) PricingRules() repositories.PricingRuleRepository {
	return r.rules
}

func (r *Registry) Customers() repositories.CustomerRepository {
	return r.customer
}

func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

func (r *Registry) Counters() repositories.CounterRepository {
	return r.counters
}

// Health returns nil when no readiness probes are configured.
func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// firestorePing lists one collection to prove the client can reach the backend.
func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		return firstCollection(ctx, client)
	}
}

func firstCollection(ctx context.Context, client *firestore.Client) error {
	iter := client.Collections(ctx)
	_, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	return err
}

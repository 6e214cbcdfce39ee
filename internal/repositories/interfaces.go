package repositories

import (
	"context"

	domain "github.com/doxvisum/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	PricingRules() PricingRuleRepository
	Customers() CustomerRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PricingRuleRepository persists per-country service prices keyed by RuleKey.
type PricingRuleRepository interface {
	// FindByKey returns a RepositoryError with IsNotFound when no document exists for the key.
	FindByKey(ctx context.Context, key domain.RuleKey) (domain.PricingRule, error)
	ListByCountry(ctx context.Context, countryCode string) ([]domain.PricingRule, error)
	Upsert(ctx context.Context, rule domain.PricingRule) (domain.PricingRule, error)
	// AdjustServiceFees reads every key, applies adjust to the rules that exist and writes them back
	// atomically. Keys without a document are reported in the result instead of failing the batch.
	AdjustServiceFees(ctx context.Context, keys []domain.RuleKey, adjust func(domain.PricingRule) domain.PricingRule) (RuleAdjustmentResult, error)
}

// RuleAdjustmentResult reports the outcome of a transactional bulk adjustment.
type RuleAdjustmentResult struct {
	Updated []domain.PricingRule
	Missing []domain.RuleKey
}

// CustomerRepository reads business customer records and their pricing agreements.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// OrderRepository persists submitted orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterConfig tunes a counter's increment and bounds.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

package services

import (
	"context"
	"time"

	domain "github.com/doxvisum/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	ServiceType          = domain.ServiceType
	PricingRule          = domain.PricingRule
	RuleKey              = domain.RuleKey
	ServiceFallbackEntry = domain.ServiceFallbackEntry
	FeeSlot              = domain.FeeSlot
	CustomPricing        = domain.CustomPricing
	CustomerPricing      = domain.CustomerPricing
	Customer             = domain.Customer
	ReturnServiceOption  = domain.ReturnServiceOption
	PickupPricing        = domain.PickupPricing
	OrderPriceRequest    = domain.OrderPriceRequest
	OrderPriceResult     = domain.OrderPriceResult
	PriceBreakdownLine   = domain.PriceBreakdownLine
	Order                = domain.Order
	OrderKind            = domain.OrderKind
	OrderStatus          = domain.OrderStatus
	OrderContact         = domain.OrderContact
	SystemHealthReport   = domain.SystemHealthReport
)

// PriceCalculator prices a single order request.
type PriceCalculator interface {
	Calculate(ctx context.Context, req OrderPriceRequest) (OrderPriceResult, error)
}

// RuleSource looks up stored pricing rules. Lookups never fail: an unreachable store
// is reported as a miss or served from a local snapshot by the implementation.
type RuleSource interface {
	LookupRule(ctx context.Context, countryCode string, serviceType ServiceType) (PricingRule, bool)
}

// PickupPricingLookup resolves the standard price of a pickup method.
type PickupPricingLookup interface {
	PickupPricingByMethod(method string) (PickupPricing, bool)
}

// RuleCacheInvalidator drops cached rule lookups after rules change.
type RuleCacheInvalidator interface {
	Invalidate()
}

// QuoteService prices order requests on behalf of API callers, resolving customer agreements.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
}

// OrderService accepts new orders and serves stored ones.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// PricingAdminService manages stored pricing rules.
type PricingAdminService interface {
	GetRule(ctx context.Context, key RuleKey) (PricingRule, error)
	ListRules(ctx context.Context, countryCode string) ([]PricingRule, error)
	UpsertRule(ctx context.Context, cmd UpsertPricingRuleCommand) (PricingRule, error)
	BulkAdjust(ctx context.Context, cmd BulkAdjustCommand) (BulkAdjustResult, error)
}

// CounterService allocates yearly order numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
	// SeedOrderSequence continues a year's numbering after lastIssued, for numbers handed out
	// before orders moved to this service.
	SeedOrderSequence(ctx context.Context, year int, lastIssued int64) error
}

// SystemService reports service health for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// QuoteCommand prices Request, resolving overrides for CustomerID when the request carries none.
type QuoteCommand struct {
	Request    OrderPriceRequest
	CustomerID string
}

// Quote is a priced order request.
type Quote struct {
	ID         string
	CreatedAt  time.Time
	CustomerID string
	Request    OrderPriceRequest
	Result     OrderPriceResult
}

type CreateOrderCommand struct {
	Kind       OrderKind
	CustomerID string
	Contact    OrderContact
	Request    OrderPriceRequest
	Notes      string
}

type UpsertPricingRuleCommand struct {
	CountryCode        string
	CountryName        string
	ServiceType        ServiceType
	OfficialFee        int64
	ServiceFee         int64
	PriceUnconfirmed   bool
	ProcessingTimeDays int
	IsActive           bool
	ActorID            string
}

// AdjustmentMode selects how a bulk adjustment changes service fees.
type AdjustmentMode string

const (
	AdjustmentPercentage AdjustmentMode = "percentage"
	AdjustmentFixed      AdjustmentMode = "fixed"
)

// BulkAdjustTarget selects the service types to adjust within one country.
type BulkAdjustTarget struct {
	CountryCode  string
	ServiceTypes []ServiceType
}

type BulkAdjustCommand struct {
	Targets []BulkAdjustTarget
	Mode    AdjustmentMode
	Value   float64
	ActorID string
}

type BulkAdjustResult struct {
	Updated []PricingRule
	Missing []RuleKey
}

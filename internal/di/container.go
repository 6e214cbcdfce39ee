package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/doxvisum/api/internal/platform/config"
	"github.com/doxvisum/api/internal/repositories"
	"github.com/doxvisum/api/internal/services"
)

const healthReuseWindow = time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Engine       *services.PricingEngine
	Rules        *services.CachedRuleSource
	Quotes       services.QuoteService
	Orders       services.OrderService
	PricingAdmin services.PricingAdminService
	Counters     services.CounterService
	System       services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerDeps)

type containerDeps struct {
	events services.EventPublisher
	logger func(context.Context, string, map[string]any)
	meter  metric.Meter
	clock  func() time.Time
	build  services.BuildInfo
	tables *services.PricingTables
}

// WithEventPublisher publishes order and pricing events through publisher.
func WithEventPublisher(publisher services.EventPublisher) Option {
	return func(d *containerDeps) {
		d.events = publisher
	}
}

// WithEventLogger routes service events to logger.
func WithEventLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(d *containerDeps) {
		d.logger = logger
	}
}

// WithMeter overrides the meter used for pricing fallback counters.
func WithMeter(meter metric.Meter) Option {
	return func(d *containerDeps) {
		d.meter = meter
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *containerDeps) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithBuildInfo sets the version metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(d *containerDeps) {
		d.build = build
	}
}

// WithPricingTables replaces the embedded fallback tables.
func WithPricingTables(tables *services.PricingTables) Option {
	return func(d *containerDeps) {
		d.tables = tables
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	deps := containerDeps{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.tables == nil {
		deps.tables = services.DefaultPricingTables()
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps containerDeps) (Services, error) {
	var svc Services

	rulesRepo := reg.PricingRules()
	if rulesRepo == nil {
		return Services{}, errors.New("pricing rule repository is required")
	}

	ruleSource, err := services.NewCachedRuleSource(services.CachedRuleSourceDeps{
		Repository: rulesRepo,
		Tables:     deps.tables,
		Timeout:    cfg.Pricing.RuleTimeout,
		CacheTTL:   cfg.Pricing.RuleCacheTTL,
		Now:        deps.clock,
		Meter:      deps.meter,
		Logger:     deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rule source: %w", err)
	}
	svc.Rules = ruleSource

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Rules:          ruleSource,
		Tables:         deps.tables,
		ResolveTimeout: cfg.Pricing.RuleTimeout,
		Meter:          deps.meter,
		Logger:         deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Engine = engine

	quoteSvc, err := services.NewQuoteService(services.QuoteServiceDeps{
		Engine:          engine,
		Customers:       reg.Customers(),
		Tables:          deps.tables,
		CustomerTimeout: cfg.Pricing.CustomerTimeout,
		Clock:           deps.clock,
		Logger:          deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}
	svc.Quotes = quoteSvc

	adminSvc, err := services.NewPricingAdminService(services.PricingAdminServiceDeps{
		Rules:  rulesRepo,
		Cache:  ruleSource,
		Events: deps.events,
		Clock:  deps.clock,
		Logger: deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing admin service: %w", err)
	}
	svc.PricingAdmin = adminSvc

	if counterRepo := reg.Counters(); counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository:  counterRepo,
			OrderPrefix: cfg.Orders.NumberPrefix,
			Clock:       deps.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if ordersRepo := reg.Orders(); ordersRepo != nil && svc.Counters != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:   ordersRepo,
			Quotes:   svc.Quotes,
			Counters: svc.Counters,
			Events:   deps.events,
			Clock:    deps.clock,
			Logger:   deps.logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.build
		if build.Environment == "" {
			build.Environment = cfg.Observability.Environment
		}
		if build.Version == "" {
			build.Version = cfg.Observability.Version
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = deps.clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.clock,
			Build:            build,
			ReuseFor:         healthReuseWindow,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/repositories"
)

const (
	metricNamespace          = "github.com/doxvisum/api/internal/services"
	defaultRuleLookupTimeout = 3 * time.Second
	defaultRuleCacheTTL      = 5 * time.Minute
	defaultRuleStoreCooldown = 30 * time.Second
)

// RuleResolver finds the pricing rule for a (country, service type) pair. The first hit wins:
// the exact stored rule, then the domestic baseline for standard services, then the static table.
type RuleResolver struct {
	source RuleSource
	tables *PricingTables
}

// NewRuleResolver builds a resolver. A nil source resolves from the static table only.
func NewRuleResolver(source RuleSource, tables *PricingTables) *RuleResolver {
	if tables == nil {
		tables = DefaultPricingTables()
	}
	return &RuleResolver{source: source, tables: tables}
}

// Resolve never fails; the boolean is false only when the service type is unknown everywhere.
func (r *RuleResolver) Resolve(ctx context.Context, countryCode string, serviceType ServiceType) (PricingRule, bool) {
	country := normalizeCountryCode(countryCode)

	if rule, ok := r.lookup(ctx, country, serviceType); ok {
		return rule, true
	}

	if serviceType.IsStandard() && country != BaselineCountryCode {
		if rule, ok := r.lookup(ctx, BaselineCountryCode, serviceType); ok {
			return rule, true
		}
	}

	entry, ok := r.tables.FallbackRule(serviceType)
	if !ok {
		return PricingRule{}, false
	}
	rule := PricingRule{
		CountryCode:        country,
		ServiceType:        serviceType,
		OfficialFee:        entry.OfficialFee,
		ServiceFee:         entry.ServiceFee,
		ProcessingTimeDays: DefaultProcessingDays,
		IsActive:           true,
		Currency:           PricingCurrency,
		Source:             domain.RuleSourceStatic,
	}
	rule.BasePrice = rule.TotalFee()
	return rule, true
}

func (r *RuleResolver) lookup(ctx context.Context, country string, serviceType ServiceType) (PricingRule, bool) {
	if r.source == nil || country == "" {
		return PricingRule{}, false
	}
	rule, ok := r.source.LookupRule(ctx, country, serviceType)
	if !ok || !rule.IsActive {
		return PricingRule{}, false
	}
	rule.BasePrice = rule.TotalFee()
	return rule, true
}

// CachedRuleSourceDeps bundles collaborators for the store-backed rule source.
type CachedRuleSourceDeps struct {
	Repository repositories.PricingRuleRepository
	Tables     *PricingTables
	Timeout    time.Duration
	CacheTTL   time.Duration
	// Cooldown is how long lookups skip the store after it failed.
	Cooldown time.Duration
	Now      func() time.Time
	Meter    metric.Meter
	Logger   func(context.Context, string, map[string]any)
}

// CachedRuleSource reads rules from the repository with a per-lookup deadline. Store failures
// degrade to the offline snapshot and suspend store reads for Cooldown; hits and confirmed
// misses are cached for CacheTTL.
type CachedRuleSource struct {
	repo      repositories.PricingRuleRepository
	tables    *PricingTables
	timeout   time.Duration
	cooldown  time.Duration
	now       func() time.Time
	cache     *ruleLookupCache
	logger    func(context.Context, string, map[string]any)
	fallbacks metric.Int64Counter
	metered   bool

	mu             sync.Mutex
	suspendedUntil time.Time
}

var _ RuleSource = (*CachedRuleSource)(nil)
var _ RuleCacheInvalidator = (*CachedRuleSource)(nil)

func NewCachedRuleSource(deps CachedRuleSourceDeps) (*CachedRuleSource, error) {
	if deps.Repository == nil {
		return nil, errors.New("rule source: repository is required")
	}
	tables := deps.Tables
	if tables == nil {
		tables = DefaultPricingTables()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRuleLookupTimeout
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultRuleCacheTTL
	}
	cooldown := deps.Cooldown
	if cooldown <= 0 {
		cooldown = defaultRuleStoreCooldown
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	utcNow := func() time.Time { return now().UTC() }
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	fallbacks, err := meter.Int64Counter(
		"pricing.rules.store_fallbacks",
		metric.WithDescription("Count of rule lookups served from the offline table because the store failed"),
	)

	return &CachedRuleSource{
		repo:      deps.Repository,
		tables:    tables,
		timeout:   timeout,
		cooldown:  cooldown,
		now:       utcNow,
		cache:     newRuleLookupCache(ttl, utcNow),
		logger:    logger,
		fallbacks: fallbacks,
		metered:   err == nil,
	}, nil
}

func (s *CachedRuleSource) LookupRule(ctx context.Context, countryCode string, serviceType ServiceType) (PricingRule, bool) {
	key := RuleKey{CountryCode: normalizeCountryCode(countryCode), ServiceType: serviceType}
	cacheKey := key.ID()

	if entry, ok := s.cache.Get(cacheKey); ok {
		return entry.rule, entry.found
	}

	if s.suspended() {
		s.countFallback(ctx, "suspended", serviceType)
		return s.tables.OfflineRule(key.CountryCode, serviceType)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rule, err := s.repo.FindByKey(fetchCtx, key)
	if err == nil {
		rule.Source = domain.RuleSourceStore
		s.cache.Put(cacheKey, ruleLookupEntry{rule: rule, found: true})
		return rule, true
	}
	if isRepoNotFound(err) {
		var invalid *repositories.InvalidDocumentError
		if errors.As(err, &invalid) {
			s.logger(ctx, "pricing.rule_invalid", map[string]any{
				"ruleId": cacheKey,
				"error":  err.Error(),
			})
		}
		s.cache.Put(cacheKey, ruleLookupEntry{})
		return PricingRule{}, false
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	// A caller that went away says nothing about the store.
	if !errors.Is(err, context.Canceled) {
		s.suspend()
	}
	s.countFallback(ctx, reason, serviceType)
	s.logger(ctx, "pricing.rule_store_unavailable", map[string]any{
		"ruleId":   cacheKey,
		"reason":   reason,
		"error":    err.Error(),
		"cooldown": s.cooldown.String(),
	})

	return s.tables.OfflineRule(key.CountryCode, serviceType)
}

func (s *CachedRuleSource) suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.suspendedUntil)
}

func (s *CachedRuleSource) suspend() {
	s.mu.Lock()
	s.suspendedUntil = s.now().Add(s.cooldown)
	s.mu.Unlock()
}

func (s *CachedRuleSource) countFallback(ctx context.Context, reason string, serviceType ServiceType) {
	if !s.metered {
		return
	}
	s.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("service_type", string(serviceType)),
	))
}

// Invalidate drops every cached lookup.
func (s *CachedRuleSource) Invalidate() {
	s.cache.Clear()
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type ruleLookupCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]ruleLookupEntry
}

type ruleLookupEntry struct {
	rule    PricingRule
	found   bool
	expires time.Time
}

func newRuleLookupCache(ttl time.Duration, now func() time.Time) *ruleLookupCache {
	return &ruleLookupCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]ruleLookupEntry),
	}
}

func (c *ruleLookupCache) Get(key string) (ruleLookupEntry, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return ruleLookupEntry{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return ruleLookupEntry{}, false
	}
	return entry, true
}

func (c *ruleLookupCache) Put(key string, entry ruleLookupEntry) {
	c.mu.Lock()
	entry.expires = c.now().Add(c.ttl)
	c.m[key] = entry
	c.mu.Unlock()
}

func (c *ruleLookupCache) Clear() {
	c.mu.Lock()
	c.m = make(map[string]ruleLookupEntry)
	c.mu.Unlock()
}

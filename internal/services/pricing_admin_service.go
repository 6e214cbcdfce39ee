package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/repositories"
)

var (
	// ErrPricingAdminInvalidInput indicates malformed rule or adjustment parameters.
	ErrPricingAdminInvalidInput = errors.New("pricing admin: invalid input")
	// ErrPricingRuleNotFound indicates the requested rule does not exist.
	ErrPricingRuleNotFound = errors.New("pricing admin: rule not found")
	// ErrPricingAdminUnavailable indicates the rule store could not be reached.
	ErrPricingAdminUnavailable = errors.New("pricing admin: store unavailable")
)

const maxBulkAdjustTargets = 250

// PricingAdminServiceDeps bundles collaborators for rule administration.
type PricingAdminServiceDeps struct {
	Rules  repositories.PricingRuleRepository
	Cache  RuleCacheInvalidator
	Events EventPublisher
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type pricingAdminService struct {
	rules  repositories.PricingRuleRepository
	cache  RuleCacheInvalidator
	events EventPublisher
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPricingAdminService constructs the service backing the admin pricing endpoints.
func NewPricingAdminService(deps PricingAdminServiceDeps) (PricingAdminService, error) {
	if deps.Rules == nil {
		return nil, errors.New("pricing admin service: rule repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingAdminService{
		rules:  deps.Rules,
		cache:  deps.Cache,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *pricingAdminService) GetRule(ctx context.Context, key RuleKey) (PricingRule, error) {
	key, err := normalizeRuleKey(key)
	if err != nil {
		return PricingRule{}, err
	}
	rule, err := s.rules.FindByKey(ctx, key)
	if err != nil {
		return PricingRule{}, s.mapRepositoryError(err)
	}
	rule.BasePrice = rule.TotalFee()
	return rule, nil
}

func (s *pricingAdminService) ListRules(ctx context.Context, countryCode string) ([]PricingRule, error) {
	country := normalizeCountryCode(countryCode)
	if !validCountryCode(country) {
		return nil, fmt.Errorf("%w: country code must be two letters", ErrPricingAdminInvalidInput)
	}
	rules, err := s.rules.ListByCountry(ctx, country)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	for i := range rules {
		rules[i].BasePrice = rules[i].TotalFee()
	}
	return rules, nil
}

func (s *pricingAdminService) UpsertRule(ctx context.Context, cmd UpsertPricingRuleCommand) (PricingRule, error) {
	key, err := normalizeRuleKey(RuleKey{CountryCode: cmd.CountryCode, ServiceType: cmd.ServiceType})
	if err != nil {
		return PricingRule{}, err
	}
	if cmd.OfficialFee < 0 || cmd.ServiceFee < 0 {
		return PricingRule{}, fmt.Errorf("%w: fees must be non-negative", ErrPricingAdminInvalidInput)
	}
	if cmd.ProcessingTimeDays < 0 {
		return PricingRule{}, fmt.Errorf("%w: processing time must be non-negative", ErrPricingAdminInvalidInput)
	}

	rule := PricingRule{
		CountryCode:        key.CountryCode,
		CountryName:        strings.TrimSpace(cmd.CountryName),
		ServiceType:        key.ServiceType,
		OfficialFee:        cmd.OfficialFee,
		ServiceFee:         cmd.ServiceFee,
		PriceUnconfirmed:   cmd.PriceUnconfirmed,
		ProcessingTimeDays: cmd.ProcessingTimeDays,
		IsActive:           cmd.IsActive,
		Currency:           PricingCurrency,
		UpdatedAt:          s.clock(),
		UpdatedBy:          strings.TrimSpace(cmd.ActorID),
	}
	rule.BasePrice = rule.TotalFee()

	saved, err := s.rules.Upsert(ctx, rule)
	if err != nil {
		return PricingRule{}, s.mapRepositoryError(err)
	}
	s.invalidate()
	s.logger(ctx, "pricing.rule_upserted", map[string]any{
		"ruleId":  key.ID(),
		"actorId": rule.UpdatedBy,
	})
	return saved, nil
}

func (s *pricingAdminService) BulkAdjust(ctx context.Context, cmd BulkAdjustCommand) (BulkAdjustResult, error) {
	if cmd.Mode != AdjustmentPercentage && cmd.Mode != AdjustmentFixed {
		return BulkAdjustResult{}, fmt.Errorf("%w: mode must be percentage or fixed", ErrPricingAdminInvalidInput)
	}
	if math.IsNaN(cmd.Value) || math.IsInf(cmd.Value, 0) {
		return BulkAdjustResult{}, fmt.Errorf("%w: value must be a finite number", ErrPricingAdminInvalidInput)
	}
	keys, err := bulkAdjustKeys(cmd.Targets)
	if err != nil {
		return BulkAdjustResult{}, err
	}

	now := s.clock()
	actor := strings.TrimSpace(cmd.ActorID)
	outcome, err := s.rules.AdjustServiceFees(ctx, keys, func(rule PricingRule) PricingRule {
		rule.ServiceFee = AdjustServiceFee(rule.ServiceFee, cmd.Mode, cmd.Value)
		rule.BasePrice = rule.TotalFee()
		rule.UpdatedAt = now
		rule.UpdatedBy = actor
		return rule
	})
	if err != nil {
		return BulkAdjustResult{}, s.mapRepositoryError(err)
	}
	s.invalidate()

	result := BulkAdjustResult{Updated: outcome.Updated, Missing: outcome.Missing}
	s.logger(ctx, "pricing.rules_adjusted", map[string]any{
		"mode":    string(cmd.Mode),
		"value":   cmd.Value,
		"updated": len(result.Updated),
		"missing": len(result.Missing),
		"actorId": actor,
	})

	if s.events != nil && len(result.Updated) > 0 {
		updated := make([]string, len(result.Updated))
		for i, rule := range result.Updated {
			updated[i] = RuleKey{CountryCode: rule.CountryCode, ServiceType: rule.ServiceType}.ID()
		}
		event := DomainEvent{
			Type:       EventPricingRulesAdjusted,
			Key:        "pricing-rules",
			OccurredAt: now,
			Payload: map[string]any{
				"mode":    string(cmd.Mode),
				"value":   cmd.Value,
				"ruleIds": updated,
				"actorId": actor,
			},
		}
		if _, err := s.events.Publish(ctx, event); err != nil {
			s.logger(ctx, "pricing.rules_adjusted_publish_failed", map[string]any{"error": err.Error()})
		}
	}
	return result, nil
}

// AdjustServiceFee applies a bulk adjustment to one service fee. Percentages round half away
// from zero; results never go below zero.
func AdjustServiceFee(fee int64, mode AdjustmentMode, value float64) int64 {
	var adjusted float64
	switch mode {
	case AdjustmentPercentage:
		adjusted = math.Round(float64(fee) * (1 + value/100))
	case AdjustmentFixed:
		adjusted = float64(fee) + math.Round(value)
	default:
		return fee
	}
	if adjusted < 0 {
		return 0
	}
	if adjusted > math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(adjusted)
}

func bulkAdjustKeys(targets []BulkAdjustTarget) ([]RuleKey, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrPricingAdminInvalidInput)
	}
	seen := make(map[string]struct{})
	var keys []RuleKey
	for _, target := range targets {
		if len(target.ServiceTypes) == 0 {
			return nil, fmt.Errorf("%w: target %q has no service types", ErrPricingAdminInvalidInput, target.CountryCode)
		}
		for _, serviceType := range target.ServiceTypes {
			key, err := normalizeRuleKey(RuleKey{CountryCode: target.CountryCode, ServiceType: serviceType})
			if err != nil {
				return nil, err
			}
			if _, dup := seen[key.ID()]; dup {
				continue
			}
			seen[key.ID()] = struct{}{}
			keys = append(keys, key)
		}
	}
	if len(keys) > maxBulkAdjustTargets {
		return nil, fmt.Errorf("%w: at most %d rules per adjustment", ErrPricingAdminInvalidInput, maxBulkAdjustTargets)
	}
	return keys, nil
}

func normalizeRuleKey(key RuleKey) (RuleKey, error) {
	country := normalizeCountryCode(key.CountryCode)
	if !validCountryCode(country) {
		return RuleKey{}, fmt.Errorf("%w: country code must be two letters", ErrPricingAdminInvalidInput)
	}
	serviceType, ok := domain.ParseServiceType(string(key.ServiceType))
	if !ok {
		return RuleKey{}, fmt.Errorf("%w: unknown service type %q", ErrPricingAdminInvalidInput, key.ServiceType)
	}
	return RuleKey{CountryCode: country, ServiceType: serviceType}, nil
}

func validCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (s *pricingAdminService) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

func (s *pricingAdminService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPricingRuleNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPricingAdminUnavailable, err)
		}
	}
	return fmt.Errorf("pricing admin: %w", err)
}

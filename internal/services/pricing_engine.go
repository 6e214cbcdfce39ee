package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/doxvisum/api/internal/domain"
)

// MaxOrderQuantity bounds the number of documents priced in one request.
const MaxOrderQuantity = 10000

var (
	// ErrPricingInvalidInput signals a malformed request such as a missing country or a non-positive quantity.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

var pricingTracer = otel.Tracer("github.com/doxvisum/api/internal/services/pricing")

// PricingEngine turns an order request into an itemized price. It holds no mutable state;
// all lookups go through the rule resolver and the pickup price table.
type PricingEngine struct {
	resolver *RuleResolver
	budget   time.Duration
	pickup   PickupPricingLookup
	logger   func(context.Context, string, map[string]any)
	skipped  metric.Int64Counter
	metered  bool
}

type PricingEngineDeps struct {
	Rules  RuleSource
	Tables *PricingTables
	// ResolveTimeout bounds rule resolution for all services of one request.
	ResolveTimeout time.Duration
	Pickup         PickupPricingLookup
	Meter          metric.Meter
	Logger         func(context.Context, string, map[string]any)
}

func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Rules == nil {
		return nil, errors.New("pricing engine: rule source is required")
	}
	tables := deps.Tables
	if tables == nil {
		tables = DefaultPricingTables()
	}
	var pickup PickupPricingLookup = tables
	if deps.Pickup != nil {
		pickup = deps.Pickup
	}
	budget := deps.ResolveTimeout
	if budget <= 0 {
		budget = defaultRuleLookupTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	skipped, err := meter.Int64Counter(
		"pricing.services_skipped",
		metric.WithDescription("Count of requested services omitted because no price could be resolved"),
	)

	return &PricingEngine{
		resolver: NewRuleResolver(deps.Rules, tables),
		budget:   budget,
		pickup:   pickup,
		logger:   logger,
		skipped:  skipped,
		metered:  err == nil,
	}, nil
}

var _ PriceCalculator = (*PricingEngine)(nil)

// ResolveRule exposes the rule fallback chain used by Calculate.
func (e *PricingEngine) ResolveRule(ctx context.Context, countryCode string, serviceType ServiceType) (PricingRule, bool) {
	return e.resolver.Resolve(ctx, countryCode, serviceType)
}

// Calculate prices req. Missing rules and store outages never fail the call; the only errors are
// for requests that violate the input contract.
func (e *PricingEngine) Calculate(ctx context.Context, req OrderPriceRequest) (OrderPriceResult, error) {
	country := normalizeCountryCode(req.CountryCode)
	if country == "" {
		return OrderPriceResult{}, fmt.Errorf("%w: country code is required", ErrPricingInvalidInput)
	}
	if req.Quantity < 1 {
		return OrderPriceResult{}, fmt.Errorf("%w: quantity must be at least 1", ErrPricingInvalidInput)
	}
	if req.Quantity > MaxOrderQuantity {
		return OrderPriceResult{}, fmt.Errorf("%w: quantity must not exceed %d", ErrPricingInvalidInput, MaxOrderQuantity)
	}

	ctx, span := pricingTracer.Start(ctx, "pricing.Calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("pricing.country", country),
		attribute.Int("pricing.quantity", req.Quantity),
		attribute.Int("pricing.services", len(req.Services)),
	)

	quantity := int64(req.Quantity)
	var overrides CustomPricing
	result := OrderPriceResult{
		Breakdown: make([]PriceBreakdownLine, 0, len(req.Services)*2+5),
	}
	if cp := req.CustomerPricing; cp != nil {
		overrides = cp.CustomPricing
		result.VATExempt = cp.VATExempt
		result.MatchedCustomer = strings.TrimSpace(cp.CompanyName)
	}
	feeVAT := domain.VATStandard
	if result.VATExempt {
		feeVAT = domain.VATExempt
	}

	// One deadline covers rule resolution for every requested service.
	resolveCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	for _, requested := range req.Services {
		serviceType, known := domain.ParseServiceType(string(requested))
		if !known {
			e.skip(ctx, &result, requested, country, "unknown_service_type")
			continue
		}
		rule, ok := e.resolver.Resolve(resolveCtx, country, serviceType)
		if !ok {
			e.skip(ctx, &result, serviceType, country, "no_rule")
			continue
		}
		if rule.PriceUnconfirmed {
			result.HasUnconfirmedPrices = true
			result.UnconfirmedServices = append(result.UnconfirmedServices, serviceType)
		}

		officialTotal := rule.OfficialFee * quantity
		serviceFee := resolveServiceFee(rule, overrides)
		result.Breakdown = append(result.Breakdown,
			PriceBreakdownLine{
				Service:     string(serviceType) + "_official",
				Description: "Officiell avgift, " + serviceType.DisplayName(),
				Quantity:    req.Quantity,
				UnitPrice:   rule.OfficialFee,
				Total:       officialTotal,
				VATRate:     domain.VATExempt,
				IsTBC:       rule.PriceUnconfirmed,
			},
			PriceBreakdownLine{
				Service:     string(serviceType) + "_service",
				Description: "Serviceavgift, " + serviceType.DisplayName(),
				Quantity:    1,
				UnitPrice:   serviceFee,
				Total:       serviceFee,
				VATRate:     feeVAT,
			},
		)
		result.BasePrice += officialTotal + serviceFee
	}

	if req.Expedited {
		fee := resolveExpressFee(overrides)
		addFee(&result, PriceBreakdownLine{
			Service:     "express_service",
			Description: "Expresshantering",
			Quantity:    1,
			UnitPrice:   fee,
			Total:       fee,
			VATRate:     feeVAT,
		})
	}

	returnID := strings.TrimSpace(req.ReturnService)
	if returnID != "" && len(req.ReturnServices) > 0 {
		if option, ok := findReturnOption(req.ReturnServices, returnID); ok {
			amount := catalogStandardPrice(option)
			if override, ok := matchOverride(returnServiceOverrideRules, returnID, overrides); ok {
				amount = override
			}
			if amount > 0 {
				addFee(&result, PriceBreakdownLine{
					Service:     "return_service",
					Description: "Returfrakt, " + optionName(option),
					Quantity:    1,
					UnitPrice:   amount,
					Total:       amount,
					VATRate:     feeVAT,
				})
			}
		}
	}

	if req.ScannedCopies {
		unit := resolveScannedCopiesFee(overrides)
		addFee(&result, PriceBreakdownLine{
			Service:     "scanned_copies",
			Description: "Skannade kopior",
			Quantity:    req.Quantity,
			UnitPrice:   unit,
			Total:       unit * quantity,
			VATRate:     feeVAT,
		})
	}

	if method := normalizeMethod(req.PickupMethod); req.PickupService && method != "" {
		amount := DefaultPickupFee
		name := "Upphämtning av dokument"
		if pricing, ok := e.pickup.PickupPricingByMethod(method); ok {
			amount = pricing.Price
			if pricing.Name != "" {
				name = pricing.Name
			}
		}
		if override, ok := methodOverride(pickupOverrideSlots, method, overrides); ok {
			amount = override
		}
		addFee(&result, PriceBreakdownLine{
			Service:     "pickup_service",
			Description: name,
			Quantity:    1,
			UnitPrice:   amount,
			Total:       amount,
			VATRate:     feeVAT,
		})
	}

	// Unlike regular pickup there is no default price: an unknown premium method adds nothing.
	if method := normalizeMethod(req.PremiumPickup); method != "" {
		if pricing, ok := e.pickup.PickupPricingByMethod(method); ok {
			amount := pricing.Price
			if override, ok := methodOverride(premiumPickupOverrideSlots, method, overrides); ok {
				amount = override
			}
			addFee(&result, PriceBreakdownLine{
				Service:     "premium_pickup",
				Description: "Premiumupphämtning, " + pricing.Name,
				Quantity:    1,
				UnitPrice:   amount,
				Total:       amount,
				VATRate:     feeVAT,
			})
		}
	}

	if deliveryID := strings.TrimSpace(req.PremiumDelivery); deliveryID != "" && deliveryID != returnID {
		if option, ok := findReturnOption(req.ReturnServices, deliveryID); ok {
			amount := catalogStandardPrice(option)
			if override, ok := matchOverride(premiumDeliveryOverrideRules, deliveryID, overrides); ok {
				amount = override
			}
			if amount > 0 {
				addFee(&result, PriceBreakdownLine{
					Service:     "premium_delivery",
					Description: "Premiumleverans, " + optionName(option),
					Quantity:    1,
					UnitPrice:   amount,
					Total:       amount,
					VATRate:     feeVAT,
				})
			}
		}
	}

	result.TotalPrice = result.BasePrice + result.AdditionalFees

	span.SetAttributes(
		attribute.Int64("pricing.total", result.TotalPrice),
		attribute.Bool("pricing.unconfirmed", result.HasUnconfirmedPrices),
	)
	if len(result.SkippedServices) > 0 {
		span.SetAttributes(attribute.Int("pricing.skipped", len(result.SkippedServices)))
	}
	return result, nil
}

func addFee(result *OrderPriceResult, line PriceBreakdownLine) {
	result.Breakdown = append(result.Breakdown, line)
	result.AdditionalFees += line.Total
}

func (e *PricingEngine) skip(ctx context.Context, result *OrderPriceResult, serviceType ServiceType, country, reason string) {
	result.SkippedServices = append(result.SkippedServices, serviceType)
	if e.metered {
		e.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	e.logger(ctx, "pricing.service_skipped", map[string]any{
		"serviceType": string(serviceType),
		"country":     country,
		"reason":      reason,
	})
}

func optionName(option ReturnServiceOption) string {
	if name := strings.TrimSpace(option.Name); name != "" {
		return name
	}
	return option.ID
}

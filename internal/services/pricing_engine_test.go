package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/doxvisum/api/internal/domain"
)

type stubRuleSource struct {
	mu    sync.Mutex
	rules map[string]PricingRule
	calls []string
}

func newStubRuleSource(rules ...PricingRule) *stubRuleSource {
	src := &stubRuleSource{rules: make(map[string]PricingRule, len(rules))}
	for _, rule := range rules {
		src.rules[RuleKey{CountryCode: rule.CountryCode, ServiceType: rule.ServiceType}.ID()] = rule
	}
	return src
}

func (s *stubRuleSource) LookupRule(_ context.Context, countryCode string, serviceType ServiceType) (PricingRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := RuleKey{CountryCode: countryCode, ServiceType: serviceType}.ID()
	s.calls = append(s.calls, id)
	rule, ok := s.rules[id]
	return rule, ok
}

func storeRule(country string, serviceType ServiceType, official, service int64) PricingRule {
	return PricingRule{
		CountryCode:        country,
		ServiceType:        serviceType,
		OfficialFee:        official,
		ServiceFee:         service,
		BasePrice:          official + service,
		ProcessingTimeDays: 5,
		IsActive:           true,
		Currency:           PricingCurrency,
		Source:             domain.RuleSourceStore,
	}
}

func newTestEngine(t *testing.T, rules ...PricingRule) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{Rules: newStubRuleSource(rules...)})
	require.NoError(t, err)
	return engine
}

func overridesFor(values map[FeeSlot]int64) *CustomerPricing {
	return &CustomerPricing{CustomerID: "cust_1", CompanyName: "Acme AB", CustomPricing: values}
}

func findLine(t *testing.T, result OrderPriceResult, service string) PriceBreakdownLine {
	t.Helper()
	for _, line := range result.Breakdown {
		if line.Service == service {
			return line
		}
	}
	require.Failf(t, "line not found", "no breakdown line %q in %+v", service, result.Breakdown)
	return PriceBreakdownLine{}
}

func hasLine(result OrderPriceResult, service string) bool {
	for _, line := range result.Breakdown {
		if line.Service == service {
			return true
		}
	}
	return false
}

func TestPricingEngineDomesticApostille(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceApostille, 795, 100))

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode: "SE",
		Quantity:    1,
		Services:    []ServiceType{domain.ServiceApostille},
	})
	require.NoError(t, err)

	require.Len(t, result.Breakdown, 2)
	official := result.Breakdown[0]
	assert.Equal(t, "apostille_official", official.Service)
	assert.Equal(t, int64(795), official.Total)
	assert.Equal(t, domain.VATExempt, official.VATRate)
	assert.False(t, official.IsTBC)

	service := result.Breakdown[1]
	assert.Equal(t, "apostille_service", service.Service)
	assert.Equal(t, int64(100), service.Total)
	assert.Equal(t, domain.VATStandard, service.VATRate)

	assert.Equal(t, int64(895), result.BasePrice)
	assert.Equal(t, int64(0), result.AdditionalFees)
	assert.Equal(t, int64(895), result.TotalPrice)
	assert.Empty(t, result.SkippedServices)
}

func TestPricingEngineUnknownCountryUsesStaticFallback(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode: "XX",
		Quantity:    3,
		Services:    []ServiceType{domain.ServiceTranslation},
	})
	require.NoError(t, err)

	official := findLine(t, result, "translation_official")
	assert.Equal(t, 3, official.Quantity)
	assert.Equal(t, int64(0), official.UnitPrice)
	assert.Equal(t, int64(0), official.Total)

	service := findLine(t, result, "translation_service")
	assert.Equal(t, 1, service.Quantity)
	assert.Equal(t, int64(999), service.Total)
	assert.Equal(t, int64(999), result.BasePrice)
	assert.Equal(t, int64(999), result.TotalPrice)
}

func TestPricingEngineServiceFeeOverride(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceApostille, 795, 100))

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		Services:        []ServiceType{domain.ServiceApostille},
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotApostilleServiceFee: 500}),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), findLine(t, result, "apostille_service").Total)
	assert.Equal(t, int64(795), findLine(t, result, "apostille_official").Total)
	assert.Equal(t, int64(1295), result.TotalPrice)
	assert.Equal(t, "Acme AB", result.MatchedCustomer)
}

func TestPricingEngineExpressOverride(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceApostille, 795, 100))

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		Services:        []ServiceType{domain.ServiceApostille},
		Expedited:       true,
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotExpressServiceFee: 300}),
	})
	require.NoError(t, err)

	express := findLine(t, result, "express_service")
	assert.Equal(t, int64(300), express.Total)
	assert.Equal(t, int64(300), result.AdditionalFees)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode: "SE",
		Quantity:    1,
		Expedited:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, ExpressFee, findLine(t, result, "express_service").Total)
}

func TestPricingEngineScannedCopiesScaleWithQuantity(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      4,
		ScannedCopies: true,
	})
	require.NoError(t, err)

	line := findLine(t, result, "scanned_copies")
	assert.Equal(t, 4, line.Quantity)
	assert.Equal(t, int64(200), line.UnitPrice)
	assert.Equal(t, int64(800), line.Total)
	assert.Equal(t, int64(800), result.AdditionalFees)
}

func TestPricingEngineReturnServiceOverrideFromLabelPrice(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      1,
		ReturnService: "dhl-pre-12",
		ReturnServices: []ReturnServiceOption{
			{ID: "dhl-pre-12", Name: "DHL Pre 12", Price: domain.CatalogPrice{Label: "Från 350 kr"}},
		},
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotDHLPre12Fee: 280}),
	})
	require.NoError(t, err)

	line := findLine(t, result, "return_service")
	assert.Equal(t, int64(280), line.Total)
	assert.Equal(t, int64(280), result.TotalPrice)
}

func TestPricingEngineReturnServiceStandardPrices(t *testing.T) {
	engine := newTestEngine(t)
	catalog := DefaultPricingTables().ReturnServices()

	cases := []struct {
		id   string
		want int64
	}{
		{id: "postnord-rek", want: 85},
		{id: "dhl-end-of-day", want: 250},
		{id: "stockholm-city", want: 320},
		{id: "stockholm-sameday", want: 650},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			result, err := engine.Calculate(context.Background(), OrderPriceRequest{
				CountryCode:    "SE",
				Quantity:       2,
				ReturnService:  tc.id,
				ReturnServices: catalog,
			})
			require.NoError(t, err)
			line := findLine(t, result, "return_service")
			assert.Equal(t, tc.want, line.Total)
			assert.Equal(t, 1, line.Quantity)
		})
	}
}

func TestPricingEngineZeroReturnPriceEmitsNoLine(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:    "SE",
		Quantity:       1,
		ReturnService:  "own-delivery",
		ReturnServices: DefaultPricingTables().ReturnServices(),
	})
	require.NoError(t, err)
	assert.False(t, hasLine(result, "return_service"))

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		ReturnService:   "postnord-rek",
		ReturnServices:  DefaultPricingTables().ReturnServices(),
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotReturnPostnordFee: 0}),
	})
	require.NoError(t, err)
	assert.False(t, hasLine(result, "return_service"), "a zero override suppresses the line")
}

func TestPricingEngineReturnKeywordPrecedence(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []ReturnServiceOption{
		{ID: "dhl-end-of-day", Price: domain.CatalogPrice{Label: "Från 250 kr"}},
		{ID: "dhl-express", Price: domain.CatalogPrice{Label: "Från 400 kr"}},
		{ID: "stockholm-express", PriceValue: int64Ptr(450)},
		{ID: "city-courier", PriceValue: int64Ptr(300)},
	}

	cases := []struct {
		name      string
		id        string
		overrides map[FeeSlot]int64
		want      int64
	}{
		{
			name:      "end of day ignores generic dhl slot",
			id:        "dhl-end-of-day",
			overrides: map[FeeSlot]int64{domain.SlotReturnDHLFee: 99},
			want:      250,
		},
		{
			name:      "generic dhl prefers returnDhlFee",
			id:        "dhl-express",
			overrides: map[FeeSlot]int64{domain.SlotReturnDHLFee: 199, domain.SlotDHLEndOfDayFee: 149},
			want:      199,
		},
		{
			name:      "generic dhl falls back to end of day slot",
			id:        "dhl-express",
			overrides: map[FeeSlot]int64{domain.SlotDHLEndOfDayFee: 149},
			want:      149,
		},
		{
			name:      "stockholm express is not treated as courier",
			id:        "stockholm-express",
			overrides: map[FeeSlot]int64{domain.SlotStockholmExpressFee: 375, domain.SlotReturnBudFee: 100},
			want:      375,
		},
		{
			name:      "courier keyword",
			id:        "city-courier",
			overrides: map[FeeSlot]int64{domain.SlotReturnBudFee: 120},
			want:      120,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Calculate(context.Background(), OrderPriceRequest{
				CountryCode:     "SE",
				Quantity:        1,
				ReturnService:   tc.id,
				ReturnServices:  catalog,
				CustomerPricing: overridesFor(tc.overrides),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, findLine(t, result, "return_service").Total)
		})
	}
}

func TestPricingEnginePickup(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      3,
		PickupService: true,
		PickupMethod:  "stockholm_courier",
	})
	require.NoError(t, err)
	line := findLine(t, result, "pickup_service")
	assert.Equal(t, int64(350), line.Total)
	assert.Equal(t, 1, line.Quantity)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		PickupService:   true,
		PickupMethod:    "dhl",
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotDHLPickupFee: 300}),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), findLine(t, result, "pickup_service").Total)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      1,
		PickupService: true,
		PickupMethod:  "bicycle",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPickupFee, findLine(t, result, "pickup_service").Total)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      1,
		PickupService: false,
		PickupMethod:  "dhl",
	})
	require.NoError(t, err)
	assert.False(t, hasLine(result, "pickup_service"))
}

func TestPricingEnginePickupMissFallsBackButPremiumPickupMissAddsNothing(t *testing.T) {
	engine, err := NewPricingEngine(PricingEngineDeps{
		Rules:  newStubRuleSource(),
		Pickup: stubPickupLookup{},
	})
	require.NoError(t, err)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		PickupService:   true,
		PickupMethod:    "stockholm_courier",
		PremiumPickup:   "dhl_express",
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotStockholmCourierFee: 275, domain.SlotDHLExpressPickupFee: 800}),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(275), findLine(t, result, "pickup_service").Total, "method override applies on top of the default")
	assert.False(t, hasLine(result, "premium_pickup"), "premium pickup has no default price")
	assert.Equal(t, int64(275), result.TotalPrice)
}

func TestPricingEnginePremiumPickup(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:   "SE",
		Quantity:      1,
		PremiumPickup: "stockholm_sameday",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), findLine(t, result, "premium_pickup").Total)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		PremiumPickup:   "dhl_express",
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotDHLExpressPickupFee: 700}),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(700), findLine(t, result, "premium_pickup").Total)
}

func TestPricingEnginePremiumDelivery(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []ReturnServiceOption{
		{ID: "postnord-rek", Price: domain.CatalogPrice{Label: "Från 85 kr"}},
		{ID: "dhl-pre-9", Price: domain.CatalogPrice{Label: "Från 450 kr"}},
	}

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		ReturnService:   "postnord-rek",
		PremiumDelivery: "dhl-pre-9",
		ReturnServices:  catalog,
		CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotReturnDHLFee: 390, domain.SlotDHLPre9Fee: 10}),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(85), findLine(t, result, "return_service").Total)
	assert.Equal(t, int64(390), findLine(t, result, "premium_delivery").Total, "premium delivery only knows the dhl and bud slots")
	assert.Equal(t, int64(475), result.AdditionalFees)

	result, err = engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		ReturnService:   "dhl-pre-9",
		PremiumDelivery: "dhl-pre-9",
		ReturnServices:  catalog,
	})
	require.NoError(t, err)
	assert.False(t, hasLine(result, "premium_delivery"))
	assert.Equal(t, int64(450), result.AdditionalFees)
}

func TestPricingEngineUnconfirmedPrice(t *testing.T) {
	rule := storeRule("SA", domain.ServiceEmbassy, 0, 1199)
	rule.PriceUnconfirmed = true
	engine := newTestEngine(t, rule)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode: "sa",
		Quantity:    2,
		Services:    []ServiceType{domain.ServiceEmbassy},
	})
	require.NoError(t, err)

	assert.True(t, result.HasUnconfirmedPrices)
	assert.Equal(t, []ServiceType{domain.ServiceEmbassy}, result.UnconfirmedServices)
	assert.True(t, findLine(t, result, "embassy_official").IsTBC)
	assert.False(t, findLine(t, result, "embassy_service").IsTBC)
	assert.Equal(t, int64(1199), result.TotalPrice)
}

func TestPricingEngineVATExemptCustomer(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceNotarization, 320, 999))

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode:     "SE",
		Quantity:        1,
		Services:        []ServiceType{domain.ServiceNotarization},
		Expedited:       true,
		CustomerPricing: &CustomerPricing{CompanyName: "Embassy Partner", VATExempt: true},
	})
	require.NoError(t, err)

	assert.True(t, result.VATExempt)
	for _, line := range result.Breakdown {
		assert.Equal(t, domain.VATExempt, line.VATRate, line.Service)
	}
}

func TestPricingEngineSkipsUnknownAndInactive(t *testing.T) {
	inactive := storeRule("DE", domain.ServiceEmbassy, 9999, 9999)
	inactive.IsActive = false
	engine := newTestEngine(t, inactive)

	result, err := engine.Calculate(context.Background(), OrderPriceRequest{
		CountryCode: "DE",
		Quantity:    1,
		Services:    []ServiceType{"courier-visa", domain.ServiceEmbassy},
	})
	require.NoError(t, err)

	assert.Equal(t, []ServiceType{"courier-visa"}, result.SkippedServices)
	official := findLine(t, result, "embassy_official")
	assert.Equal(t, int64(1500), official.Total, "inactive rule falls through to the static table")
	assert.Equal(t, int64(1500+1199), result.TotalPrice)
}

func TestPricingEngineRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Calculate(context.Background(), OrderPriceRequest{CountryCode: "  ", Quantity: 1})
	assert.ErrorIs(t, err, ErrPricingInvalidInput)

	_, err = engine.Calculate(context.Background(), OrderPriceRequest{CountryCode: "SE", Quantity: 0})
	assert.ErrorIs(t, err, ErrPricingInvalidInput)

	_, err = engine.Calculate(context.Background(), OrderPriceRequest{CountryCode: "SE", Quantity: MaxOrderQuantity + 1})
	assert.ErrorIs(t, err, ErrPricingInvalidInput)
}

func TestResolveRuleFallbackDeterminism(t *testing.T) {
	ctx := context.Background()
	standard := []ServiceType{domain.ServiceNotarization, domain.ServiceChamber, domain.ServiceUD, domain.ServiceApostille}

	withBaseline := newTestEngine(t,
		storeRule("SE", domain.ServiceNotarization, 320, 999),
		storeRule("SE", domain.ServiceChamber, 799, 1199),
		storeRule("SE", domain.ServiceUD, 750, 999),
		storeRule("SE", domain.ServiceApostille, 795, 100),
	)
	withoutBaseline := newTestEngine(t)

	for _, serviceType := range standard {
		for _, country := range []string{"XX", "NO", "us"} {
			got, ok := withBaseline.ResolveRule(ctx, country, serviceType)
			require.True(t, ok)
			want, ok := withBaseline.ResolveRule(ctx, BaselineCountryCode, serviceType)
			require.True(t, ok)
			assert.Equal(t, want, got, "%s/%s", country, serviceType)

			static, ok := withoutBaseline.ResolveRule(ctx, country, serviceType)
			require.True(t, ok)
			entry, ok := DefaultPricingTables().FallbackRule(serviceType)
			require.True(t, ok)
			assert.Equal(t, entry.OfficialFee, static.OfficialFee)
			assert.Equal(t, entry.ServiceFee, static.ServiceFee)
			assert.Equal(t, entry.OfficialFee+entry.ServiceFee, static.BasePrice)
			assert.Equal(t, normalizeCountryCode(country), static.CountryCode)
			assert.Equal(t, DefaultProcessingDays, static.ProcessingTimeDays)
			assert.Equal(t, domain.RuleSourceStatic, static.Source)
			assert.True(t, static.IsActive)
		}
	}
}

func TestResolveRuleCountrySpecificServicesSkipBaseline(t *testing.T) {
	source := newStubRuleSource(storeRule("SE", domain.ServiceEmbassy, 1, 1))
	engine, err := NewPricingEngine(PricingEngineDeps{Rules: source})
	require.NoError(t, err)

	rule, ok := engine.ResolveRule(context.Background(), "EG", domain.ServiceEmbassy)
	require.True(t, ok)
	assert.Equal(t, int64(1500), rule.OfficialFee)
	assert.Equal(t, []string{"EG_embassy"}, source.calls)
}

func TestPricingEngineOfficialFeeNeverOverridden(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceChamber, 799, 1199))

	everySlot := map[FeeSlot]int64{
		domain.SlotChamberServiceFee: 1,
		domain.SlotDoxServiceFee:     1,
		domain.SlotExpressServiceFee: 1,
		domain.SlotScannedCopiesFee:  1,
		domain.SlotDHLPickupFee:      1,
		domain.SlotReturnDHLFee:      1,
	}

	for _, overrides := range []map[FeeSlot]int64{nil, {}, everySlot} {
		result, err := engine.Calculate(context.Background(), OrderPriceRequest{
			CountryCode:     "SE",
			Quantity:        5,
			Services:        []ServiceType{domain.ServiceChamber},
			CustomerPricing: overridesFor(overrides),
		})
		require.NoError(t, err)
		line := findLine(t, result, "chamber_official")
		assert.Equal(t, int64(799), line.UnitPrice)
		assert.Equal(t, int64(799*5), line.Total)
	}
}

func TestPricingEngineOverridePrecedence(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceUD, 750, 999))

	cases := []struct {
		name      string
		overrides map[FeeSlot]int64
		want      int64
	}{
		{name: "specific zero beats general", overrides: map[FeeSlot]int64{domain.SlotUDServiceFee: 0, domain.SlotDoxServiceFee: 700}, want: 0},
		{name: "specific beats general", overrides: map[FeeSlot]int64{domain.SlotUDServiceFee: 650, domain.SlotDoxServiceFee: 700}, want: 650},
		{name: "general when specific absent", overrides: map[FeeSlot]int64{domain.SlotDoxServiceFee: 700}, want: 700},
		{name: "other service slot ignored", overrides: map[FeeSlot]int64{domain.SlotApostilleServiceFee: 1}, want: 999},
		{name: "no overrides", overrides: nil, want: 999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Calculate(context.Background(), OrderPriceRequest{
				CountryCode:     "SE",
				Quantity:        1,
				Services:        []ServiceType{domain.ServiceUD},
				CustomerPricing: overridesFor(tc.overrides),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, findLine(t, result, "ud_service").Total)
		})
	}
}

func TestPricingEngineOnlyOfficialAndScansScaleWithQuantity(t *testing.T) {
	engine := newTestEngine(t, storeRule("SE", domain.ServiceApostille, 795, 100))
	base := OrderPriceRequest{
		CountryCode:    "SE",
		Services:       []ServiceType{domain.ServiceApostille},
		Expedited:      true,
		ScannedCopies:  true,
		PickupService:  true,
		PickupMethod:   "dhl",
		ReturnService:  "postnord-rek",
		ReturnServices: DefaultPricingTables().ReturnServices(),
	}

	single := base
	single.Quantity = 1
	one, err := engine.Calculate(context.Background(), single)
	require.NoError(t, err)

	many := base
	many.Quantity = 7
	seven, err := engine.Calculate(context.Background(), many)
	require.NoError(t, err)

	scaled := map[string]bool{"apostille_official": true, "scanned_copies": true}
	require.Len(t, seven.Breakdown, len(one.Breakdown))
	for i, line := range seven.Breakdown {
		if scaled[line.Service] {
			assert.Equal(t, one.Breakdown[i].Total*7, line.Total, line.Service)
			continue
		}
		assert.Equal(t, one.Breakdown[i].Total, line.Total, line.Service)
	}
}

func TestPricingEngineTotalsAreConsistentAndIdempotent(t *testing.T) {
	engine := newTestEngine(t,
		storeRule("SE", domain.ServiceApostille, 795, 100),
		storeRule("EG", domain.ServiceEmbassy, 1500, 1199),
	)
	catalog := DefaultPricingTables().ReturnServices()
	requests := []OrderPriceRequest{
		{CountryCode: "SE", Quantity: 1, Services: []ServiceType{domain.ServiceApostille}},
		{CountryCode: "EG", Quantity: 2, Services: []ServiceType{domain.ServiceNotarization, domain.ServiceEmbassy, domain.ServiceTranslation}, Expedited: true},
		{CountryCode: "NO", Quantity: 3, Services: []ServiceType{domain.ServiceChamber}, ScannedCopies: true, PickupService: true, PickupMethod: "dhl", ReturnService: "dhl-pre-9", ReturnServices: catalog},
		{CountryCode: "SE", Quantity: 1, PremiumPickup: "dhl_express", PremiumDelivery: "stockholm-sameday", ReturnService: "postnord-rek", ReturnServices: catalog,
			CustomerPricing: overridesFor(map[FeeSlot]int64{domain.SlotReturnBudFee: 123, domain.SlotDoxServiceFee: 0})},
	}

	for i, req := range requests {
		first, err := engine.Calculate(context.Background(), req)
		require.NoError(t, err, "request %d", i)
		second, err := engine.Calculate(context.Background(), req)
		require.NoError(t, err, "request %d", i)

		assert.Equal(t, first, second, "request %d", i)
		assert.Equal(t, first.BasePrice+first.AdditionalFees, first.TotalPrice, "request %d", i)

		var sum int64
		for _, line := range first.Breakdown {
			sum += line.Total
		}
		assert.Equal(t, first.TotalPrice, sum, "request %d", i)
	}
}

type stubPickupLookup struct{}

func (stubPickupLookup) PickupPricingByMethod(string) (PickupPricing, bool) {
	return PickupPricing{}, false
}

func int64Ptr(v int64) *int64 {
	return &v
}

package services

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	domain "github.com/doxvisum/api/internal/domain"
)

const (
	// ExpressFee is the standard expedited-handling fee in SEK.
	ExpressFee int64 = 500
	// ScannedCopiesFee is the standard per-document scan fee in SEK.
	ScannedCopiesFee int64 = 200
	// DefaultPickupFee applies when the pickup method has no price entry.
	DefaultPickupFee int64 = 450
	// BaselineCountryCode is the domestic rule set standard services fall back to.
	BaselineCountryCode = "SE"
	// DefaultProcessingDays is assigned to rules synthesized from the static table.
	DefaultProcessingDays = 14
	// PricingCurrency is the only currency prices are expressed in.
	PricingCurrency = "SEK"
)

//go:embed pricing_defaults.yaml
var pricingDefaultsYAML []byte

type pricingDefaultsFile struct {
	ServiceFallbacks []struct {
		ServiceType string `yaml:"serviceType"`
		OfficialFee int64  `yaml:"officialFee"`
		ServiceFee  int64  `yaml:"serviceFee"`
	} `yaml:"serviceFallbacks"`
	OfflineRules []struct {
		CountryCode        string `yaml:"countryCode"`
		CountryName        string `yaml:"countryName"`
		ServiceType        string `yaml:"serviceType"`
		OfficialFee        int64  `yaml:"officialFee"`
		ServiceFee         int64  `yaml:"serviceFee"`
		ProcessingTimeDays int    `yaml:"processingTimeDays"`
		PriceUnconfirmed   bool   `yaml:"priceUnconfirmed"`
	} `yaml:"offlineRules"`
	ReturnServices []struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		Price      string `yaml:"price"`
		PriceValue *int64 `yaml:"priceValue"`
	} `yaml:"returnServices"`
	PickupPricing []struct {
		Method string `yaml:"method"`
		Name   string `yaml:"name"`
		Price  int64  `yaml:"price"`
	} `yaml:"pickupPricing"`
}

// PricingTables holds the built-in price tables: static service fallbacks, the offline
// rule snapshot, the default return-service catalog and pickup prices.
type PricingTables struct {
	fallbacks      map[ServiceType]ServiceFallbackEntry
	offline        map[string]PricingRule
	returnServices []ReturnServiceOption
	pickup         map[string]PickupPricing
}

var loadDefaultPricingTables = sync.OnceValues(func() (*PricingTables, error) {
	return ParsePricingTables(pricingDefaultsYAML)
})

// DefaultPricingTables returns the tables embedded in the binary.
func DefaultPricingTables() *PricingTables {
	tables, err := loadDefaultPricingTables()
	if err != nil {
		panic(fmt.Sprintf("pricing defaults: %v", err))
	}
	return tables
}

// ParsePricingTables decodes a YAML document in the pricing_defaults.yaml layout.
func ParsePricingTables(data []byte) (*PricingTables, error) {
	var file pricingDefaultsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode pricing tables: %w", err)
	}

	tables := &PricingTables{
		fallbacks: make(map[ServiceType]ServiceFallbackEntry, len(file.ServiceFallbacks)),
		offline:   make(map[string]PricingRule, len(file.OfflineRules)),
		pickup:    make(map[string]PickupPricing, len(file.PickupPricing)),
	}

	var errs []error
	for i, entry := range file.ServiceFallbacks {
		serviceType, ok := domain.ParseServiceType(entry.ServiceType)
		if !ok {
			errs = append(errs, fmt.Errorf("serviceFallbacks[%d]: unknown service type %q", i, entry.ServiceType))
			continue
		}
		if entry.OfficialFee < 0 || entry.ServiceFee < 0 {
			errs = append(errs, fmt.Errorf("serviceFallbacks[%d]: fees must be non-negative", i))
			continue
		}
		tables.fallbacks[serviceType] = ServiceFallbackEntry{
			ServiceType: serviceType,
			OfficialFee: entry.OfficialFee,
			ServiceFee:  entry.ServiceFee,
		}
	}

	for i, entry := range file.OfflineRules {
		serviceType, ok := domain.ParseServiceType(entry.ServiceType)
		if !ok {
			errs = append(errs, fmt.Errorf("offlineRules[%d]: unknown service type %q", i, entry.ServiceType))
			continue
		}
		country := normalizeCountryCode(entry.CountryCode)
		if country == "" {
			errs = append(errs, fmt.Errorf("offlineRules[%d]: countryCode is required", i))
			continue
		}
		if entry.OfficialFee < 0 || entry.ServiceFee < 0 {
			errs = append(errs, fmt.Errorf("offlineRules[%d]: fees must be non-negative", i))
			continue
		}
		rule := PricingRule{
			CountryCode:        country,
			CountryName:        strings.TrimSpace(entry.CountryName),
			ServiceType:        serviceType,
			OfficialFee:        entry.OfficialFee,
			ServiceFee:         entry.ServiceFee,
			PriceUnconfirmed:   entry.PriceUnconfirmed,
			ProcessingTimeDays: entry.ProcessingTimeDays,
			IsActive:           true,
			Currency:           PricingCurrency,
			Source:             domain.RuleSourceOffline,
		}
		rule.BasePrice = rule.TotalFee()
		tables.offline[RuleKey{CountryCode: country, ServiceType: serviceType}.ID()] = rule
	}

	for i, entry := range file.ReturnServices {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("returnServices[%d]: id is required", i))
			continue
		}
		option := ReturnServiceOption{
			ID:         id,
			Name:       strings.TrimSpace(entry.Name),
			Price:      domain.CatalogPrice{Label: entry.Price},
			PriceValue: entry.PriceValue,
		}
		tables.returnServices = append(tables.returnServices, option)
	}

	for i, entry := range file.PickupPricing {
		method := normalizeMethod(entry.Method)
		if method == "" {
			errs = append(errs, fmt.Errorf("pickupPricing[%d]: method is required", i))
			continue
		}
		tables.pickup[method] = PickupPricing{Method: method, Name: strings.TrimSpace(entry.Name), Price: entry.Price}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid pricing tables: %w", err)
	}
	return tables, nil
}

// FallbackRule returns the static default for a service type.
func (t *PricingTables) FallbackRule(serviceType ServiceType) (ServiceFallbackEntry, bool) {
	if t == nil {
		return ServiceFallbackEntry{}, false
	}
	entry, ok := t.fallbacks[serviceType]
	return entry, ok
}

// OfflineRule returns the snapshot rule served while the rule store is unreachable.
func (t *PricingTables) OfflineRule(countryCode string, serviceType ServiceType) (PricingRule, bool) {
	if t == nil {
		return PricingRule{}, false
	}
	rule, ok := t.offline[RuleKey{CountryCode: countryCode, ServiceType: serviceType}.ID()]
	return rule, ok
}

// ReturnServices returns a copy of the default return-service catalog.
func (t *PricingTables) ReturnServices() []ReturnServiceOption {
	if t == nil || len(t.returnServices) == 0 {
		return nil
	}
	out := make([]ReturnServiceOption, len(t.returnServices))
	copy(out, t.returnServices)
	return out
}

// PickupPricingByMethod implements PickupPricingLookup.
func (t *PricingTables) PickupPricingByMethod(method string) (PickupPricing, bool) {
	if t == nil {
		return PickupPricing{}, false
	}
	pricing, ok := t.pickup[normalizeMethod(method)]
	return pricing, ok
}

func normalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

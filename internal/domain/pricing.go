package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ServiceType enumerates the legalization services that carry a price.
type ServiceType string

const (
	ServiceApostille    ServiceType = "apostille"
	ServiceNotarization ServiceType = "notarization"
	ServiceEmbassy      ServiceType = "embassy"
	ServiceUD           ServiceType = "ud"
	ServiceTranslation  ServiceType = "translation"
	ServiceChamber      ServiceType = "chamber"
)

// ServiceTypes lists every known service type in presentation order.
var ServiceTypes = []ServiceType{
	ServiceApostille,
	ServiceNotarization,
	ServiceEmbassy,
	ServiceUD,
	ServiceTranslation,
	ServiceChamber,
}

// ParseServiceType normalises raw input and reports whether it names a known service.
func ParseServiceType(raw string) (ServiceType, bool) {
	candidate := ServiceType(strings.ToLower(strings.TrimSpace(raw)))
	switch candidate {
	case ServiceApostille, ServiceNotarization, ServiceEmbassy, ServiceUD, ServiceTranslation, ServiceChamber:
		return candidate, true
	}
	return candidate, false
}

// IsStandard reports whether the service is priced the same regardless of destination,
// which allows falling back to the domestic baseline rule.
func (s ServiceType) IsStandard() bool {
	switch s {
	case ServiceNotarization, ServiceChamber, ServiceUD, ServiceApostille:
		return true
	}
	return false
}

// ServiceFeeSlot returns the customer override slot holding the service-specific fee.
func (s ServiceType) ServiceFeeSlot() (FeeSlot, bool) {
	switch s {
	case ServiceApostille:
		return SlotApostilleServiceFee, true
	case ServiceNotarization:
		return SlotNotarizationServiceFee, true
	case ServiceEmbassy:
		return SlotEmbassyServiceFee, true
	case ServiceUD:
		return SlotUDServiceFee, true
	case ServiceTranslation:
		return SlotTranslationServiceFee, true
	case ServiceChamber:
		return SlotChamberServiceFee, true
	}
	return "", false
}

// DisplayName returns the customer-facing Swedish label.
func (s ServiceType) DisplayName() string {
	switch s {
	case ServiceApostille:
		return "Apostille"
	case ServiceNotarization:
		return "Notarius Publicus"
	case ServiceEmbassy:
		return "Ambassadlegalisering"
	case ServiceUD:
		return "Utrikesdepartementet"
	case ServiceTranslation:
		return "Auktoriserad översättning"
	case ServiceChamber:
		return "Handelskammaren"
	}
	return string(s)
}

// RuleSource records where a resolved pricing rule came from.
type RuleSource string

const (
	RuleSourceStore    RuleSource = "store"
	RuleSourceBaseline RuleSource = "baseline"
	RuleSourceStatic   RuleSource = "static"
	RuleSourceOffline  RuleSource = "offline"
)

// PricingRule is the price for one (country, service type) combination.
type PricingRule struct {
	CountryCode        string
	CountryName        string
	ServiceType        ServiceType
	OfficialFee        int64
	ServiceFee         int64
	BasePrice          int64
	PriceUnconfirmed   bool
	ProcessingTimeDays int
	IsActive           bool
	Currency           string
	UpdatedAt          time.Time
	UpdatedBy          string
	Source             RuleSource
}

// TotalFee recomputes the base price from its components. Stored BasePrice values are never trusted.
func (r PricingRule) TotalFee() int64 {
	return r.OfficialFee + r.ServiceFee
}

// RuleKey identifies a pricing rule document.
type RuleKey struct {
	CountryCode string
	ServiceType ServiceType
}

// ID returns the canonical document identifier, e.g. "SE_apostille".
func (k RuleKey) ID() string {
	return strings.ToUpper(strings.TrimSpace(k.CountryCode)) + "_" + string(k.ServiceType)
}

// ServiceFallbackEntry is the built-in default price for a service when no rule exists.
type ServiceFallbackEntry struct {
	ServiceType ServiceType
	OfficialFee int64
	ServiceFee  int64
}

// VATRate is the Swedish VAT percentage applied to a breakdown line.
type VATRate int

const (
	VATStandard VATRate = 25
	VATExempt   VATRate = 0
)

// CatalogPrice holds a return-service price which upstream catalogs store either as a
// number or as display text such as "Från 85 kr".
type CatalogPrice struct {
	Value *int64
	Label string
}

// UnmarshalJSON accepts both numeric and string encodings.
func (p *CatalogPrice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*p = CatalogPrice{}
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		*p = CatalogPrice{Label: label}
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	if v, err := number.Int64(); err == nil {
		*p = CatalogPrice{Value: &v}
		return nil
	}
	f, err := strconv.ParseFloat(number.String(), 64)
	if err != nil {
		return err
	}
	v := int64(f)
	*p = CatalogPrice{Value: &v}
	return nil
}

// MarshalJSON writes the numeric value when present, otherwise the label.
func (p CatalogPrice) MarshalJSON() ([]byte, error) {
	if p.Value != nil {
		return json.Marshal(*p.Value)
	}
	return json.Marshal(p.Label)
}

// ReturnServiceOption is one entry of the return/delivery catalog shown to customers.
type ReturnServiceOption struct {
	ID         string
	Name       string
	Price      CatalogPrice
	PriceValue *int64
}

// PickupPricing is the standard price for a document pickup method.
type PickupPricing struct {
	Method string
	Name   string
	Price  int64
}

// OrderPriceRequest is the pricing engine's sole input.
type OrderPriceRequest struct {
	CountryCode     string
	Quantity        int
	Services        []ServiceType
	Expedited       bool
	ScannedCopies   bool
	PickupService   bool
	PickupMethod    string
	ReturnService   string
	PremiumPickup   string
	PremiumDelivery string
	ReturnServices  []ReturnServiceOption
	CustomerPricing *CustomerPricing
}

// PriceBreakdownLine is one emitted row of a price breakdown.
type PriceBreakdownLine struct {
	Service     string
	Description string
	Quantity    int
	UnitPrice   int64
	Total       int64
	VATRate     VATRate
	IsTBC       bool
}

// OrderPriceResult aggregates the itemized price of an order.
type OrderPriceResult struct {
	BasePrice            int64
	AdditionalFees       int64
	TotalPrice           int64
	Breakdown            []PriceBreakdownLine
	HasUnconfirmedPrices bool
	UnconfirmedServices  []ServiceType
	VATExempt            bool
	MatchedCustomer      string
	SkippedServices      []ServiceType
}

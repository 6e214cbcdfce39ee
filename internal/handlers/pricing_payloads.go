package handlers

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/services"
)

const priceOnRequestLabel = "Pris på förfrågan"

// priceRequestPayload is the JSON form of an order price request shared by quotes and orders.
type priceRequestPayload struct {
	CountryCode     string                  `json:"country_code"`
	Quantity        int                     `json:"quantity"`
	Services        []string                `json:"services"`
	Expedited       bool                    `json:"expedited"`
	ScannedCopies   bool                    `json:"scanned_copies"`
	PickupService   bool                    `json:"pickup_service"`
	PickupMethod    string                  `json:"pickup_method,omitempty"`
	ReturnService   string                  `json:"return_service,omitempty"`
	PremiumPickup   string                  `json:"premium_pickup,omitempty"`
	PremiumDelivery string                  `json:"premium_delivery,omitempty"`
	ReturnServices  []returnServicePayload  `json:"return_services,omitempty"`
	CustomerPricing *customerPricingPayload `json:"customer_pricing,omitempty"`
}

type returnServicePayload struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Price      domain.CatalogPrice `json:"price"`
	PriceValue *int64              `json:"price_value,omitempty"`
}

type customerPricingPayload struct {
	CustomerID    string         `json:"customer_id"`
	CompanyName   string         `json:"company_name"`
	VATExempt     bool           `json:"vat_exempt"`
	CustomPricing map[string]any `json:"custom_pricing"`
}

func (p priceRequestPayload) toDomain() services.OrderPriceRequest {
	req := services.OrderPriceRequest{
		CountryCode:     strings.ToUpper(strings.TrimSpace(p.CountryCode)),
		Quantity:        p.Quantity,
		Expedited:       p.Expedited,
		ScannedCopies:   p.ScannedCopies,
		PickupService:   p.PickupService,
		PickupMethod:    strings.TrimSpace(p.PickupMethod),
		ReturnService:   strings.TrimSpace(p.ReturnService),
		PremiumPickup:   strings.TrimSpace(p.PremiumPickup),
		PremiumDelivery: strings.TrimSpace(p.PremiumDelivery),
	}
	if len(p.Services) > 0 {
		req.Services = make([]services.ServiceType, 0, len(p.Services))
		for _, raw := range p.Services {
			// Unknown types are passed through so the engine reports them as skipped.
			serviceType, _ := domain.ParseServiceType(raw)
			req.Services = append(req.Services, serviceType)
		}
	}
	if len(p.ReturnServices) > 0 {
		req.ReturnServices = make([]services.ReturnServiceOption, 0, len(p.ReturnServices))
		for _, option := range p.ReturnServices {
			req.ReturnServices = append(req.ReturnServices, services.ReturnServiceOption{
				ID:         strings.TrimSpace(option.ID),
				Name:       strings.TrimSpace(option.Name),
				Price:      option.Price,
				PriceValue: option.PriceValue,
			})
		}
	}
	if p.CustomerPricing != nil {
		req.CustomerPricing = &services.CustomerPricing{
			CustomerID:    strings.TrimSpace(p.CustomerPricing.CustomerID),
			CompanyName:   strings.TrimSpace(p.CustomerPricing.CompanyName),
			VATExempt:     p.CustomerPricing.VATExempt,
			CustomPricing: domain.ParseCustomPricing(p.CustomerPricing.CustomPricing),
		}
	}
	return req
}

func buildPriceRequestPayload(req services.OrderPriceRequest) priceRequestPayload {
	payload := priceRequestPayload{
		CountryCode:     req.CountryCode,
		Quantity:        req.Quantity,
		Services:        serviceTypeStrings(req.Services),
		Expedited:       req.Expedited,
		ScannedCopies:   req.ScannedCopies,
		PickupService:   req.PickupService,
		PickupMethod:    req.PickupMethod,
		ReturnService:   req.ReturnService,
		PremiumPickup:   req.PremiumPickup,
		PremiumDelivery: req.PremiumDelivery,
	}
	return payload
}

type priceResultPayload struct {
	Currency             string                 `json:"currency"`
	BasePrice            int64                  `json:"base_price"`
	AdditionalFees       int64                  `json:"additional_fees"`
	TotalPrice           int64                  `json:"total_price"`
	TotalDisplay         string                 `json:"total_display"`
	HasUnconfirmedPrices bool                   `json:"has_unconfirmed_prices"`
	UnconfirmedServices  []string               `json:"unconfirmed_services,omitempty"`
	VATExempt            bool                   `json:"vat_exempt"`
	MatchedCustomer      string                 `json:"matched_customer,omitempty"`
	SkippedServices      []string               `json:"skipped_services,omitempty"`
	Breakdown            []breakdownLinePayload `json:"breakdown"`
}

type breakdownLinePayload struct {
	Service      string `json:"service"`
	Description  string `json:"description"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display"`
	VATRate      int    `json:"vat_rate"`
	IsTBC        bool   `json:"is_tbc"`
}

func buildPriceResultPayload(result services.OrderPriceResult) priceResultPayload {
	payload := priceResultPayload{
		Currency:             services.PricingCurrency,
		BasePrice:            result.BasePrice,
		AdditionalFees:       result.AdditionalFees,
		TotalPrice:           result.TotalPrice,
		TotalDisplay:         formatSEK(result.TotalPrice),
		HasUnconfirmedPrices: result.HasUnconfirmedPrices,
		UnconfirmedServices:  serviceTypeStrings(result.UnconfirmedServices),
		VATExempt:            result.VATExempt,
		MatchedCustomer:      result.MatchedCustomer,
		SkippedServices:      serviceTypeStrings(result.SkippedServices),
		Breakdown:            make([]breakdownLinePayload, 0, len(result.Breakdown)),
	}
	if result.HasUnconfirmedPrices {
		payload.TotalDisplay = priceOnRequestLabel
	}
	for _, line := range result.Breakdown {
		display := formatSEK(line.Total)
		if line.IsTBC {
			display = priceOnRequestLabel
		}
		payload.Breakdown = append(payload.Breakdown, breakdownLinePayload{
			Service:      line.Service,
			Description:  line.Description,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Total:        line.Total,
			TotalDisplay: display,
			VATRate:      int(line.VATRate),
			IsTBC:        line.IsTBC,
		})
	}
	return payload
}

// formatSEK renders whole kronor with Swedish digit grouping, e.g. "1 200 kr".
func formatSEK(amount int64) string {
	return message.NewPrinter(language.Swedish).Sprintf("%d kr", amount)
}

func serviceTypeStrings(types []services.ServiceType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, serviceType := range types {
		out[i] = string(serviceType)
	}
	return out
}

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/platform/httpx"
	"github.com/doxvisum/api/internal/platform/requestctx"
	"github.com/doxvisum/api/internal/services"
)

const maxPricingAdminBodySize = 64 * 1024

type upsertPricingRuleRequest struct {
	CountryName        string `json:"country_name"`
	OfficialFee        int64  `json:"official_fee"`
	ServiceFee         int64  `json:"service_fee"`
	PriceUnconfirmed   bool   `json:"price_unconfirmed"`
	ProcessingTimeDays int    `json:"processing_time_days"`
	IsActive           *bool  `json:"is_active"`
}

type bulkAdjustRequest struct {
	Targets []bulkAdjustTargetPayload `json:"targets"`
	Mode    string                    `json:"mode"`
	Value   *float64                  `json:"value"`
}

type bulkAdjustTargetPayload struct {
	CountryCode  string   `json:"country_code"`
	ServiceTypes []string `json:"service_types"`
}

type pricingRulePayload struct {
	ID                 string `json:"id"`
	CountryCode        string `json:"country_code"`
	CountryName        string `json:"country_name,omitempty"`
	ServiceType        string `json:"service_type"`
	OfficialFee        int64  `json:"official_fee"`
	ServiceFee         int64  `json:"service_fee"`
	BasePrice          int64  `json:"base_price"`
	PriceUnconfirmed   bool   `json:"price_unconfirmed"`
	ProcessingTimeDays int    `json:"processing_time_days"`
	IsActive           bool   `json:"is_active"`
	Currency           string `json:"currency"`
	UpdatedAt          string `json:"updated_at,omitempty"`
	UpdatedBy          string `json:"updated_by,omitempty"`
}

type pricingRuleResponse struct {
	Rule pricingRulePayload `json:"rule"`
}

type pricingRuleListResponse struct {
	Rules []pricingRulePayload `json:"rules"`
}

type bulkAdjustResponse struct {
	Updated []pricingRulePayload `json:"updated"`
	Missing []string             `json:"missing"`
}

// AdminPricingHandlers manages stored pricing rules. Callers are authenticated upstream.
type AdminPricingHandlers struct {
	pricing services.PricingAdminService
}

// NewAdminPricingHandlers constructs a new AdminPricingHandlers instance.
func NewAdminPricingHandlers(pricing services.PricingAdminService) *AdminPricingHandlers {
	return &AdminPricingHandlers{pricing: pricing}
}

// Routes registers the /admin/pricing-rules endpoints.
func (h *AdminPricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricing-rules", h.listRules)
	r.Post("/pricing-rules:bulk-adjust", h.bulkAdjust)
	r.Get("/pricing-rules/{countryCode}/{serviceType}", h.getRule)
	r.Put("/pricing-rules/{countryCode}/{serviceType}", h.upsertRule)
}

func (h *AdminPricingHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		writePricingAdminUnavailable(ctx, w)
		return
	}

	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "country query parameter is required", http.StatusBadRequest))
		return
	}

	rules, err := h.pricing.ListRules(ctx, country)
	if err != nil {
		writePricingAdminError(ctx, w, err)
		return
	}

	payload := pricingRuleListResponse{Rules: make([]pricingRulePayload, 0, len(rules))}
	for _, rule := range rules {
		payload.Rules = append(payload.Rules, buildPricingRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminPricingHandlers) getRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		writePricingAdminUnavailable(ctx, w)
		return
	}

	key, ok := ruleKeyFromPath(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown service type", http.StatusBadRequest))
		return
	}

	rule, err := h.pricing.GetRule(ctx, key)
	if err != nil {
		writePricingAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pricingRuleResponse{Rule: buildPricingRulePayload(rule)})
}

func (h *AdminPricingHandlers) upsertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		writePricingAdminUnavailable(ctx, w)
		return
	}

	key, ok := ruleKeyFromPath(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown service type", http.StatusBadRequest))
		return
	}

	var req upsertPricingRuleRequest
	if err := decodeJSONBody(r, maxPricingAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := h.pricing.UpsertRule(ctx, services.UpsertPricingRuleCommand{
		CountryCode:        key.CountryCode,
		CountryName:        strings.TrimSpace(req.CountryName),
		ServiceType:        key.ServiceType,
		OfficialFee:        req.OfficialFee,
		ServiceFee:         req.ServiceFee,
		PriceUnconfirmed:   req.PriceUnconfirmed,
		ProcessingTimeDays: req.ProcessingTimeDays,
		IsActive:           active,
		ActorID:            requestctx.Actor(ctx),
	})
	if err != nil {
		writePricingAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pricingRuleResponse{Rule: buildPricingRulePayload(rule)})
}

func (h *AdminPricingHandlers) bulkAdjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		writePricingAdminUnavailable(ctx, w)
		return
	}

	var req bulkAdjustRequest
	if err := decodeJSONBody(r, maxPricingAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Value == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "value is required", http.StatusBadRequest))
		return
	}

	cmd := services.BulkAdjustCommand{
		Targets: make([]services.BulkAdjustTarget, 0, len(req.Targets)),
		Mode:    services.AdjustmentMode(strings.ToLower(strings.TrimSpace(req.Mode))),
		Value:   *req.Value,
		ActorID: requestctx.Actor(ctx),
	}
	for _, target := range req.Targets {
		types := make([]services.ServiceType, 0, len(target.ServiceTypes))
		for _, raw := range target.ServiceTypes {
			serviceType, _ := domain.ParseServiceType(raw)
			types = append(types, serviceType)
		}
		cmd.Targets = append(cmd.Targets, services.BulkAdjustTarget{
			CountryCode:  target.CountryCode,
			ServiceTypes: types,
		})
	}

	result, err := h.pricing.BulkAdjust(ctx, cmd)
	if err != nil {
		writePricingAdminError(ctx, w, err)
		return
	}

	payload := bulkAdjustResponse{
		Updated: make([]pricingRulePayload, 0, len(result.Updated)),
		Missing: make([]string, 0, len(result.Missing)),
	}
	for _, rule := range result.Updated {
		payload.Updated = append(payload.Updated, buildPricingRulePayload(rule))
	}
	for _, key := range result.Missing {
		payload.Missing = append(payload.Missing, key.ID())
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func ruleKeyFromPath(r *http.Request) (services.RuleKey, bool) {
	serviceType, ok := domain.ParseServiceType(chi.URLParam(r, "serviceType"))
	if !ok {
		return services.RuleKey{}, false
	}
	return services.RuleKey{
		CountryCode: strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "countryCode"))),
		ServiceType: serviceType,
	}, true
}

func buildPricingRulePayload(rule services.PricingRule) pricingRulePayload {
	return pricingRulePayload{
		ID:                 services.RuleKey{CountryCode: rule.CountryCode, ServiceType: rule.ServiceType}.ID(),
		CountryCode:        rule.CountryCode,
		CountryName:        rule.CountryName,
		ServiceType:        string(rule.ServiceType),
		OfficialFee:        rule.OfficialFee,
		ServiceFee:         rule.ServiceFee,
		BasePrice:          rule.BasePrice,
		PriceUnconfirmed:   rule.PriceUnconfirmed,
		ProcessingTimeDays: rule.ProcessingTimeDays,
		IsActive:           rule.IsActive,
		Currency:           rule.Currency,
		UpdatedAt:          formatTimestamp(rule.UpdatedAt),
		UpdatedBy:          rule.UpdatedBy,
	}
}

func writePricingAdminUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
}

func writePricingAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	fallback := httpx.NewError("pricing_error", "failed to process pricing request", http.StatusInternalServerError)
	httpx.WriteError(ctx, w, httpx.Map(err, fallback, pricingAdminErrorRules...))
}

var pricingAdminErrorRules = []httpx.Rule{
	{Target: services.ErrPricingAdminInvalidInput, Code: "invalid_request", Status: http.StatusBadRequest, Expose: true},
	{Target: services.ErrPricingRuleNotFound, Code: "pricing_rule_not_found", Message: "pricing rule not found", Status: http.StatusNotFound},
	{Target: services.ErrPricingAdminUnavailable, Code: "pricing_store_unavailable", Message: "pricing store unavailable", Status: http.StatusServiceUnavailable},
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/platform/observability"
	"github.com/doxvisum/api/internal/services"
)

type stubPricingAdminService struct {
	rules      map[string]services.PricingRule
	upserts    []services.UpsertPricingRuleCommand
	bulk       []services.BulkAdjustCommand
	bulkResult services.BulkAdjustResult
	err        error
}

func (s *stubPricingAdminService) GetRule(_ context.Context, key services.RuleKey) (services.PricingRule, error) {
	if s.err != nil {
		return services.PricingRule{}, s.err
	}
	rule, ok := s.rules[key.ID()]
	if !ok {
		return services.PricingRule{}, fmt.Errorf("%w: %s", services.ErrPricingRuleNotFound, key.ID())
	}
	return rule, nil
}

func (s *stubPricingAdminService) ListRules(_ context.Context, countryCode string) ([]services.PricingRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []services.PricingRule
	for _, rule := range s.rules {
		if strings.EqualFold(rule.CountryCode, countryCode) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *stubPricingAdminService) UpsertRule(_ context.Context, cmd services.UpsertPricingRuleCommand) (services.PricingRule, error) {
	s.upserts = append(s.upserts, cmd)
	if s.err != nil {
		return services.PricingRule{}, s.err
	}
	return services.PricingRule{
		CountryCode:        cmd.CountryCode,
		CountryName:        cmd.CountryName,
		ServiceType:        cmd.ServiceType,
		OfficialFee:        cmd.OfficialFee,
		ServiceFee:         cmd.ServiceFee,
		BasePrice:          cmd.OfficialFee + cmd.ServiceFee,
		PriceUnconfirmed:   cmd.PriceUnconfirmed,
		ProcessingTimeDays: cmd.ProcessingTimeDays,
		IsActive:           cmd.IsActive,
		Currency:           services.PricingCurrency,
		UpdatedAt:          time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		UpdatedBy:          cmd.ActorID,
	}, nil
}

func (s *stubPricingAdminService) BulkAdjust(_ context.Context, cmd services.BulkAdjustCommand) (services.BulkAdjustResult, error) {
	s.bulk = append(s.bulk, cmd)
	if s.err != nil {
		return services.BulkAdjustResult{}, s.err
	}
	return s.bulkResult, nil
}

func newAdminPricingRouter(svc services.PricingAdminService) http.Handler {
	handlers := NewAdminPricingHandlers(svc)
	router := chi.NewRouter()
	router.Route("/admin", func(r chi.Router) {
		r.Use(observability.ActorMiddleware("X-Actor-Id"))
		handlers.Routes(r)
	})
	return router
}

func TestAdminPricingHandlersListRules(t *testing.T) {
	svc := &stubPricingAdminService{rules: map[string]services.PricingRule{
		"SE_apostille": {CountryCode: "SE", ServiceType: domain.ServiceApostille, OfficialFee: 795, ServiceFee: 100, BasePrice: 895, IsActive: true, Currency: "SEK"},
		"EG_embassy":   {CountryCode: "EG", ServiceType: domain.ServiceEmbassy, OfficialFee: 1500, ServiceFee: 1199, BasePrice: 2699, IsActive: true, Currency: "SEK"},
	}}
	router := newAdminPricingRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/pricing-rules?country=se", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Rules []struct {
			ID        string `json:"id"`
			BasePrice int64  `json:"base_price"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].ID != "SE_apostille" || resp.Rules[0].BasePrice != 895 {
		t.Fatalf("unexpected rules %+v", resp.Rules)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/pricing-rules", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without country, got %d", rr.Code)
	}
}

func TestAdminPricingHandlersGetRule(t *testing.T) {
	svc := &stubPricingAdminService{rules: map[string]services.PricingRule{
		"SE_apostille": {CountryCode: "SE", ServiceType: domain.ServiceApostille, OfficialFee: 795, ServiceFee: 100, BasePrice: 895},
	}}
	router := newAdminPricingRouter(svc)

	cases := []struct {
		path   string
		status int
	}{
		{path: "/admin/pricing-rules/se/APOSTILLE", status: http.StatusOK},
		{path: "/admin/pricing-rules/SE/chamber", status: http.StatusNotFound},
		{path: "/admin/pricing-rules/SE/courier", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.path, tc.status, rr.Code)
		}
	}
}

func TestAdminPricingHandlersUpsertRule(t *testing.T) {
	svc := &stubPricingAdminService{}
	router := newAdminPricingRouter(svc)

	body := `{"country_name":"Kina","official_fee":0,"service_fee":1199,"price_unconfirmed":true,"processing_time_days":20}`
	req := httptest.NewRequest(http.MethodPut, "/admin/pricing-rules/cn/embassy", strings.NewReader(body))
	req.Header.Set("X-Actor-Id", "admin@doxvisum.se")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(svc.upserts))
	}
	cmd := svc.upserts[0]
	if cmd.CountryCode != "CN" || cmd.ServiceType != domain.ServiceEmbassy {
		t.Fatalf("unexpected key %+v", cmd)
	}
	if !cmd.IsActive {
		t.Fatalf("expected rules to default to active")
	}
	if cmd.ActorID != "admin@doxvisum.se" {
		t.Fatalf("expected actor from header, got %q", cmd.ActorID)
	}

	var resp struct {
		Rule struct {
			ID               string `json:"id"`
			PriceUnconfirmed bool   `json:"price_unconfirmed"`
			UpdatedBy        string `json:"updated_by"`
		} `json:"rule"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Rule.ID != "CN_embassy" || !resp.Rule.PriceUnconfirmed || resp.Rule.UpdatedBy != "admin@doxvisum.se" {
		t.Fatalf("unexpected rule payload %+v", resp.Rule)
	}
}

func TestAdminPricingHandlersUpsertRuleInvalid(t *testing.T) {
	svc := &stubPricingAdminService{err: fmt.Errorf("%w: service fee must not be negative", services.ErrPricingAdminInvalidInput)}
	req := httptest.NewRequest(http.MethodPut, "/admin/pricing-rules/SE/apostille", strings.NewReader(`{"service_fee":-1}`))
	rr := httptest.NewRecorder()
	newAdminPricingRouter(svc).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminPricingHandlersBulkAdjust(t *testing.T) {
	svc := &stubPricingAdminService{
		bulkResult: services.BulkAdjustResult{
			Updated: []services.PricingRule{{CountryCode: "SE", ServiceType: domain.ServiceApostille, OfficialFee: 795, ServiceFee: 110, BasePrice: 905}},
			Missing: []services.RuleKey{{CountryCode: "SE", ServiceType: domain.ServiceChamber}},
		},
	}
	body := `{"targets":[{"country_code":"SE","service_types":["apostille","Chamber"]}],"mode":"Percentage","value":10}`
	req := httptest.NewRequest(http.MethodPost, "/admin/pricing-rules:bulk-adjust", strings.NewReader(body))
	req.Header.Set("X-Actor-Id", "ops-1")
	rr := httptest.NewRecorder()
	newAdminPricingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.bulk) != 1 {
		t.Fatalf("expected one bulk call, got %d", len(svc.bulk))
	}
	cmd := svc.bulk[0]
	if cmd.Mode != services.AdjustmentPercentage || cmd.Value != 10 || cmd.ActorID != "ops-1" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if len(cmd.Targets) != 1 || len(cmd.Targets[0].ServiceTypes) != 2 || cmd.Targets[0].ServiceTypes[1] != domain.ServiceChamber {
		t.Fatalf("unexpected targets %+v", cmd.Targets)
	}

	var resp struct {
		Updated []struct {
			ServiceFee int64 `json:"service_fee"`
		} `json:"updated"`
		Missing []string `json:"missing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Updated) != 1 || resp.Updated[0].ServiceFee != 110 {
		t.Fatalf("unexpected updated %+v", resp.Updated)
	}
	if len(resp.Missing) != 1 || resp.Missing[0] != "SE_chamber" {
		t.Fatalf("unexpected missing %v", resp.Missing)
	}
}

func TestAdminPricingHandlersBulkAdjustErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "missing value", body: `{"targets":[],"mode":"fixed"}`, status: http.StatusBadRequest},
		{name: "invalid", body: `{"targets":[],"mode":"fixed","value":1}`, err: fmt.Errorf("%w: at least one target is required", services.ErrPricingAdminInvalidInput), status: http.StatusBadRequest},
		{name: "unavailable", body: `{"targets":[],"mode":"fixed","value":1}`, err: fmt.Errorf("%w: deadline", services.ErrPricingAdminUnavailable), status: http.StatusServiceUnavailable},
		{name: "unexpected", body: `{"targets":[],"mode":"fixed","value":1}`, err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPricingAdminService{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/admin/pricing-rules:bulk-adjust", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			newAdminPricingRouter(svc).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

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
	"github.com/doxvisum/api/internal/services"
)

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn    func(context.Context, string) (services.Order, error)
	created  []services.CreateOrderCommand
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.created = append(s.created, cmd)
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func newOrderRouter(svc services.OrderService) http.Handler {
	handlers := NewOrderHandlers(svc)
	router := chi.NewRouter()
	router.Route("/orders", handlers.Routes)
	return router
}

func sampleOrder(cmd services.CreateOrderCommand) services.Order {
	now := time.Date(2026, 6, 2, 8, 15, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_01",
		OrderNumber: "DOX-2026-000042",
		Kind:        cmd.Kind,
		Status:      domain.OrderStatusReceived,
		Contact:     cmd.Contact,
		Request:     cmd.Request,
		Pricing:     services.OrderPriceResult{BasePrice: 895, AdditionalFees: 85, TotalPrice: 980},
		Notes:       cmd.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			return sampleOrder(cmd), nil
		},
	}

	body := `{
		"kind": "Visa",
		"contact": {"name": "<b>Anna</b> Svensson", "email": " anna@example.se ", "company_name": "Smith & Co"},
		"notes": "<script>alert(1)</script>Ring innan leverans",
		"country_code": "se",
		"quantity": 1,
		"services": ["apostille"],
		"return_service": "postnord-rek"
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord_01" {
		t.Fatalf("unexpected location %q", loc)
	}

	if len(svc.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(svc.created))
	}
	cmd := svc.created[0]
	if cmd.Kind != domain.OrderKindVisa {
		t.Fatalf("expected visa kind, got %s", cmd.Kind)
	}
	if cmd.Contact.Name != "Anna Svensson" || cmd.Contact.Email != "anna@example.se" {
		t.Fatalf("expected sanitised contact, got %+v", cmd.Contact)
	}
	if cmd.Contact.CompanyName != "Smith & Co" {
		t.Fatalf("expected ampersand preserved, got %q", cmd.Contact.CompanyName)
	}
	if strings.Contains(cmd.Notes, "<") || !strings.Contains(cmd.Notes, "Ring innan leverans") {
		t.Fatalf("expected markup stripped from notes, got %q", cmd.Notes)
	}
	if cmd.Request.CountryCode != "SE" || cmd.Request.ReturnService != "postnord-rek" {
		t.Fatalf("unexpected price request %+v", cmd.Request)
	}

	var resp struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"order_number"`
			Status      string `json:"status"`
			Pricing     struct {
				TotalPrice int64 `json:"total_price"`
			} `json:"pricing"`
			CreatedAt string `json:"created_at"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.OrderNumber != "DOX-2026-000042" || resp.Order.Status != "received" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
	if resp.Order.Pricing.TotalPrice != 980 || resp.Order.CreatedAt != "2026-06-02T08:15:00Z" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestOrderHandlersCreateOrderErrors(t *testing.T) {
	validBody := `{"contact":{"name":"Anna","email":"anna@example.se"},"country_code":"SE","quantity":1,"services":["apostille"]}`
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "invalid input", body: validBody, err: fmt.Errorf("%w: contact email is invalid", services.ErrOrderInvalidInput), status: http.StatusBadRequest},
		{name: "conflict", body: validBody, err: fmt.Errorf("%w: duplicate", services.ErrOrderConflict), status: http.StatusConflict},
		{name: "counter exhausted", body: validBody, err: fmt.Errorf("order: allocate order number: %w", services.ErrCounterExhausted), status: http.StatusServiceUnavailable},
		{name: "unexpected", body: validBody, err: errors.New("boom"), status: http.StatusInternalServerError},
		{name: "notes too long", body: `{"notes":"` + strings.Repeat("a", maxOrderNotesLength+1) + `"}`, status: http.StatusBadRequest},
		{name: "contact too long", body: `{"contact":{"name":"` + strings.Repeat("n", maxContactFieldChars+1) + `"}}`, status: http.StatusBadRequest},
		{name: "bad json", body: `[]`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
				return services.Order{}, tc.err
			}}
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_01" {
				return services.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, orderID)
			}
			return sampleOrder(services.CreateOrderCommand{Kind: domain.OrderKindLegalization}), nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_01", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Order struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.ID != "ord_01" || resp.Order.Kind != "legalization" {
		t.Fatalf("unexpected order %+v", resp.Order)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var errBody map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if errBody["error"] != "order_not_found" {
		t.Fatalf("unexpected error code %v", errBody["error"])
	}
}

func TestOrderHandlersRejectClientPricing(t *testing.T) {
	bodies := map[string]string{
		"customer pricing": `{"contact": {"name": "Anna", "email": "anna@example.se"}, "country_code": "SE", "quantity": 1,
			"services": ["apostille"], "customer_pricing": {"vat_exempt": true, "custom_pricing": {"doxServiceFee": 0}}}`,
		"return catalog": `{"contact": {"name": "Anna", "email": "anna@example.se"}, "country_code": "SE", "quantity": 1,
			"services": ["apostille"], "return_service": "postnord-rek", "return_services": [{"id": "postnord-rek", "name": "PostNord", "price": 0}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrderService{}
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if code := errorCode(t, rr); code != "invalid_request" {
				t.Fatalf("expected invalid_request, got %q", code)
			}
			if len(svc.created) != 0 {
				t.Fatalf("order service must not be called")
			}
		})
	}
}

package handlers

import (
	"context"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/doxvisum/api/internal/platform/httpx"
	"github.com/doxvisum/api/internal/services"
)

const (
	maxOrderBodySize     = 48 * 1024
	maxOrderNotesLength  = 2000
	maxContactFieldChars = 200
)

type createOrderRequest struct {
	Kind       string              `json:"kind"`
	CustomerID string              `json:"customer_id"`
	Contact    orderContactPayload `json:"contact"`
	Notes      string              `json:"notes"`
	priceRequestPayload
}

type orderContactPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

type orderPayload struct {
	ID          string              `json:"id"`
	OrderNumber string              `json:"order_number"`
	Kind        string              `json:"kind"`
	Status      string              `json:"status"`
	CustomerID  string              `json:"customer_id,omitempty"`
	Contact     orderContactPayload `json:"contact"`
	Request     priceRequestPayload `json:"request"`
	Pricing     priceResultPayload  `json:"pricing"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// OrderHandlers accepts legalization and visa orders and serves them back by id.
type OrderHandlers struct {
	orders services.OrderService
	text   *bluemonday.Policy
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		orders: orders,
		text:   bluemonday.StrictPolicy(),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if req.CustomerPricing != nil || len(req.ReturnServices) > 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer_pricing and return_services are not accepted on orders", http.StatusBadRequest))
		return
	}

	notes := h.plainText(req.Notes)
	if utf8.RuneCountInString(notes) > maxOrderNotesLength {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notes exceed maximum length", http.StatusBadRequest))
		return
	}
	contact := services.OrderContact{
		Name:        h.plainText(req.Contact.Name),
		Email:       strings.TrimSpace(req.Contact.Email),
		Phone:       h.plainText(req.Contact.Phone),
		CompanyName: h.plainText(req.Contact.CompanyName),
	}
	for _, field := range []string{contact.Name, contact.Email, contact.Phone, contact.CompanyName} {
		if utf8.RuneCountInString(field) > maxContactFieldChars {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "contact field exceeds maximum length", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Kind:       services.OrderKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		CustomerID: strings.TrimSpace(req.CustomerID),
		Contact:    contact,
		Request:    req.toDomain(),
		Notes:      notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// plainText strips markup from free text and returns it unescaped for storage.
func (h *OrderHandlers) plainText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(h.text.Sanitize(value)))
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Kind:        string(order.Kind),
		Status:      string(order.Status),
		CustomerID:  order.CustomerID,
		Contact: orderContactPayload{
			Name:        order.Contact.Name,
			Email:       order.Contact.Email,
			Phone:       order.Contact.Phone,
			CompanyName: order.Contact.CompanyName,
		},
		Request:   buildPriceRequestPayload(order.Request),
		Pricing:   buildPriceResultPayload(order.Pricing),
		Notes:     order.Notes,
		CreatedAt: formatTimestamp(order.CreatedAt),
		UpdatedAt: formatTimestamp(order.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	fallback := httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError)
	httpx.WriteError(ctx, w, httpx.Map(err, fallback, orderErrorRules...))
}

var orderErrorRules = []httpx.Rule{
	{Target: services.ErrOrderInvalidInput, Code: "invalid_request", Status: http.StatusBadRequest, Expose: true},
	{Target: services.ErrOrderNotFound, Code: "order_not_found", Message: "order not found", Status: http.StatusNotFound},
	{Target: services.ErrOrderConflict, Code: "order_conflict", Message: "order already exists", Status: http.StatusConflict},
	{Target: services.ErrCounterExhausted, Code: "order_number_exhausted", Message: "order numbers exhausted", Status: http.StatusServiceUnavailable},
}

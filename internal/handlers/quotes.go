package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/doxvisum/api/internal/platform/httpx"
	"github.com/doxvisum/api/internal/services"
)

const maxQuoteBodySize = 32 * 1024

type quoteRequest struct {
	CustomerID string `json:"customer_id"`
	priceRequestPayload
}

type quotePayload struct {
	ID         string              `json:"id"`
	CreatedAt  string              `json:"created_at"`
	CustomerID string              `json:"customer_id,omitempty"`
	Request    priceRequestPayload `json:"request"`
	Pricing    priceResultPayload  `json:"pricing"`
}

type quoteResponse struct {
	Quote quotePayload `json:"quote"`
}

// QuoteHandlers prices order requests without persisting them.
type QuoteHandlers struct {
	quotes services.QuoteService
}

// NewQuoteHandlers constructs a new QuoteHandlers instance.
func NewQuoteHandlers(quotes services.QuoteService) *QuoteHandlers {
	return &QuoteHandlers{quotes: quotes}
}

// Routes registers the /quotes endpoints.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createQuote)
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if err := decodeJSONBody(r, maxQuoteBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	quote, err := h.quotes.Quote(ctx, services.QuoteCommand{
		Request:    req.toDomain(),
		CustomerID: strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, quoteResponse{Quote: quotePayload{
		ID:         quote.ID,
		CreatedAt:  formatTimestamp(quote.CreatedAt),
		CustomerID: quote.CustomerID,
		Request:    buildPriceRequestPayload(quote.Request),
		Pricing:    buildPriceResultPayload(quote.Result),
	}})
}

var (
	bodyErrorRules = []httpx.Rule{
		{Target: errBodyTooLarge, Code: "payload_too_large", Message: "request body exceeds allowed size", Status: http.StatusRequestEntityTooLarge},
		{Target: errEmptyBody, Code: "invalid_request", Message: "request body is required", Status: http.StatusBadRequest},
		{Target: errUnsupportedMedia, Code: "unsupported_media_type", Message: "request body must be application/json", Status: http.StatusUnsupportedMediaType},
	}
	pricingErrorRules = []httpx.Rule{
		{Target: services.ErrPricingInvalidInput, Code: "invalid_request", Status: http.StatusBadRequest, Expose: true},
	}
)

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	fallback := httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	httpx.WriteError(ctx, w, httpx.Map(err, fallback, bodyErrorRules...))
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	fallback := httpx.NewError("pricing_error", "failed to price request", http.StatusInternalServerError)
	httpx.WriteError(ctx, w, httpx.Map(err, fallback, pricingErrorRules...))
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doxvisum/api/internal/repositories"
)

const (
	quoteIDPrefix              = "qt_"
	defaultCustomerLookupLimit = 2 * time.Second
)

// QuoteServiceDeps bundles collaborators required to construct the quote service.
type QuoteServiceDeps struct {
	Engine          PriceCalculator
	Customers       repositories.CustomerRepository
	Tables          *PricingTables
	CustomerTimeout time.Duration
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type quoteService struct {
	engine          PriceCalculator
	customers       repositories.CustomerRepository
	tables          *PricingTables
	customerTimeout time.Duration
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

// NewQuoteService wires the pricing engine with customer agreement lookup.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Engine == nil {
		return nil, errors.New("quote service: pricing engine is required")
	}
	tables := deps.Tables
	if tables == nil {
		tables = DefaultPricingTables()
	}
	timeout := deps.CustomerTimeout
	if timeout <= 0 {
		timeout = defaultCustomerLookupLimit
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &quoteService{
		engine:          deps.Engine,
		customers:       deps.Customers,
		tables:          tables,
		customerTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *quoteService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	req := cmd.Request
	customerID := strings.TrimSpace(cmd.CustomerID)

	// A stored agreement always replaces inline pricing; inline pricing is only a preview for
	// callers without a customer id.
	if customerID != "" {
		req.CustomerPricing = s.customerPricing(ctx, customerID)
	} else if req.CustomerPricing != nil {
		customerID = req.CustomerPricing.CustomerID
	}
	if len(req.ReturnServices) == 0 && strings.TrimSpace(req.ReturnService+req.PremiumDelivery) != "" {
		req.ReturnServices = s.tables.ReturnServices()
	}

	result, err := s.engine.Calculate(ctx, req)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		ID:         quoteIDPrefix + s.newID(),
		CreatedAt:  s.clock(),
		CustomerID: customerID,
		Request:    req,
		Result:     result,
	}, nil
}

// customerPricing loads the customer's agreement. Any failure prices the order without
// overrides rather than rejecting it.
func (s *quoteService) customerPricing(ctx context.Context, customerID string) *CustomerPricing {
	if s.customers == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.customerTimeout)
	defer cancel()

	customer, err := s.customers.FindByID(lookupCtx, customerID)
	if err != nil {
		event := "quote.customer_lookup_failed"
		if isRepoNotFound(err) {
			event = "quote.customer_not_found"
		}
		s.logger(ctx, event, map[string]any{
			"customerId": customerID,
			"error":      err.Error(),
		})
		return nil
	}
	if !customer.IsActive {
		s.logger(ctx, "quote.customer_inactive", map[string]any{"customerId": customerID})
		return nil
	}
	pricing := customer.Pricing()
	return &pricing
}

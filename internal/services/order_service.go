package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/doxvisum/api/internal/domain"
	"github.com/doxvisum/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a duplicate order id or number.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Quotes      QuoteService
	Counters    CounterService
	Events      EventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	quotes   QuoteService
	counters CounterService
	events   EventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Quotes == nil {
		return nil, errors.New("order service: quote service is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
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
	return &orderService{
		orders:   deps.Orders,
		quotes:   deps.Quotes,
		counters: deps.Counters,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	kind := cmd.Kind
	if kind == "" {
		kind = domain.OrderKindLegalization
	}
	if kind != domain.OrderKindLegalization && kind != domain.OrderKindVisa {
		return Order{}, fmt.Errorf("%w: unknown order kind %q", ErrOrderInvalidInput, kind)
	}
	contact, err := normalizeContact(cmd.Contact)
	if err != nil {
		return Order{}, err
	}
	if len(cmd.Request.Services) == 0 {
		return Order{}, fmt.Errorf("%w: at least one service is required", ErrOrderInvalidInput)
	}

	// Orders are priced from stored agreements and the default catalog only.
	req := cmd.Request
	req.CustomerPricing = nil
	req.ReturnServices = nil

	quote, err := s.quotes.Quote(ctx, QuoteCommand{Request: req, CustomerID: cmd.CustomerID})
	if err != nil {
		if errors.Is(err, ErrPricingInvalidInput) {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return Order{}, err
	}

	number, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: allocate order number: %w", err)
	}

	now := s.clock()
	order := Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: number,
		Kind:        kind,
		Status:      domain.OrderStatusReceived,
		CustomerID:  quote.CustomerID,
		Contact:     contact,
		Request:     quote.Request,
		Pricing:     quote.Result,
		Notes:       strings.TrimSpace(cmd.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// The catalog is request context, not part of the order record.
	order.Request.ReturnServices = nil
	order.Request.CustomerPricing = nil

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"totalPrice":  order.Pricing.TotalPrice,
		"unconfirmed": order.Pricing.HasUnconfirmedPrices,
	})
	s.publishCreated(ctx, order)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) publishCreated(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	serviceTypes := make([]string, len(order.Request.Services))
	for i, serviceType := range order.Request.Services {
		serviceTypes[i] = string(serviceType)
	}
	_, err := s.events.Publish(ctx, DomainEvent{
		Type:       EventOrderCreated,
		Key:        order.OrderNumber,
		OccurredAt: order.CreatedAt,
		Payload: map[string]any{
			"orderId":              order.ID,
			"orderNumber":          order.OrderNumber,
			"kind":                 string(order.Kind),
			"countryCode":          order.Request.CountryCode,
			"services":             serviceTypes,
			"totalPrice":           order.Pricing.TotalPrice,
			"hasUnconfirmedPrices": order.Pricing.HasUnconfirmedPrices,
		},
	})
	if err != nil {
		s.logger(ctx, "order.created_publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func normalizeContact(contact OrderContact) (OrderContact, error) {
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Phone = strings.TrimSpace(contact.Phone)
	contact.CompanyName = strings.TrimSpace(contact.CompanyName)
	if contact.Name == "" {
		return OrderContact{}, fmt.Errorf("%w: contact name is required", ErrOrderInvalidInput)
	}
	if contact.Email == "" {
		return OrderContact{}, fmt.Errorf("%w: contact email is required", ErrOrderInvalidInput)
	}
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return OrderContact{}, fmt.Errorf("%w: contact email is invalid", ErrOrderInvalidInput)
	}
	return contact, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return fmt.Errorf("order: %w", err)
}

package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/doxvisum/api/internal/domain"
	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists submitted orders together with their priced snapshot.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert creates the order document. An existing document with the same id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order id is required")
	}
	_, err := r.base.Create(ctx, id, fromDomainOrder(order))
	return err
}

// FindByID loads the order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order := toDomainOrder(doc.Data)
	order.ID = doc.ID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime.UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime.UTC()
	}
	return order, nil
}

type orderDocument struct {
	OrderNumber string               `firestore:"orderNumber"`
	Kind        string               `firestore:"kind"`
	Status      string               `firestore:"status"`
	CustomerID  string               `firestore:"customerId,omitempty"`
	Contact     orderContactDocument `firestore:"contact"`
	Request     orderRequestDocument `firestore:"request"`
	Pricing     orderPricingDocument `firestore:"pricing"`
	Notes       string               `firestore:"notes,omitempty"`
	CreatedAt   time.Time            `firestore:"createdAt"`
	UpdatedAt   time.Time            `firestore:"updatedAt"`
}

type orderContactDocument struct {
	Name        string `firestore:"name"`
	Email       string `firestore:"email"`
	Phone       string `firestore:"phone,omitempty"`
	CompanyName string `firestore:"companyName,omitempty"`
}

type orderRequestDocument struct {
	CountryCode     string   `firestore:"country"`
	Quantity        int      `firestore:"quantity"`
	Services        []string `firestore:"services"`
	Expedited       bool     `firestore:"expedited"`
	ScannedCopies   bool     `firestore:"scannedCopies"`
	PickupService   bool     `firestore:"pickupService"`
	PickupMethod    string   `firestore:"pickupMethod,omitempty"`
	ReturnService   string   `firestore:"returnService,omitempty"`
	PremiumPickup   string   `firestore:"premiumPickup,omitempty"`
	PremiumDelivery string   `firestore:"premiumDelivery,omitempty"`
}

type orderPricingDocument struct {
	BasePrice            int64                   `firestore:"basePrice"`
	AdditionalFees       int64                   `firestore:"additionalFees"`
	TotalPrice           int64                   `firestore:"totalPrice"`
	Breakdown            []breakdownLineDocument `firestore:"breakdown"`
	HasUnconfirmedPrices bool                    `firestore:"hasUnconfirmedPrices"`
	UnconfirmedServices  []string                `firestore:"unconfirmedServices,omitempty"`
	VATExempt            bool                    `firestore:"vatExempt"`
	MatchedCustomer      string                  `firestore:"matchedCustomer,omitempty"`
}

type breakdownLineDocument struct {
	Service     string `firestore:"service"`
	Description string `firestore:"description"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Total       int64  `firestore:"total"`
	VATRate     int    `firestore:"vatRate"`
	IsTBC       bool   `firestore:"isTBC,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	req := order.Request
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		Kind:        string(order.Kind),
		Status:      string(order.Status),
		CustomerID:  order.CustomerID,
		Contact: orderContactDocument{
			Name:        order.Contact.Name,
			Email:       order.Contact.Email,
			Phone:       order.Contact.Phone,
			CompanyName: order.Contact.CompanyName,
		},
		Request: orderRequestDocument{
			CountryCode:     req.CountryCode,
			Quantity:        req.Quantity,
			Services:        serviceTypesToStrings(req.Services),
			Expedited:       req.Expedited,
			ScannedCopies:   req.ScannedCopies,
			PickupService:   req.PickupService,
			PickupMethod:    req.PickupMethod,
			ReturnService:   req.ReturnService,
			PremiumPickup:   req.PremiumPickup,
			PremiumDelivery: req.PremiumDelivery,
		},
		Pricing: orderPricingDocument{
			BasePrice:            order.Pricing.BasePrice,
			AdditionalFees:       order.Pricing.AdditionalFees,
			TotalPrice:           order.Pricing.TotalPrice,
			Breakdown:            make([]breakdownLineDocument, 0, len(order.Pricing.Breakdown)),
			HasUnconfirmedPrices: order.Pricing.HasUnconfirmedPrices,
			UnconfirmedServices:  serviceTypesToStrings(order.Pricing.UnconfirmedServices),
			VATExempt:            order.Pricing.VATExempt,
			MatchedCustomer:      order.Pricing.MatchedCustomer,
		},
		Notes:     order.Notes,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	for _, line := range order.Pricing.Breakdown {
		doc.Pricing.Breakdown = append(doc.Pricing.Breakdown, breakdownLineDocument{
			Service:     line.Service,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total,
			VATRate:     int(line.VATRate),
			IsTBC:       line.IsTBC,
		})
	}
	return doc
}

func toDomainOrder(doc orderDocument) domain.Order {
	order := domain.Order{
		OrderNumber: doc.OrderNumber,
		Kind:        domain.OrderKind(doc.Kind),
		Status:      domain.OrderStatus(doc.Status),
		CustomerID:  doc.CustomerID,
		Contact: domain.OrderContact{
			Name:        doc.Contact.Name,
			Email:       doc.Contact.Email,
			Phone:       doc.Contact.Phone,
			CompanyName: doc.Contact.CompanyName,
		},
		Request: domain.OrderPriceRequest{
			CountryCode:     doc.Request.CountryCode,
			Quantity:        doc.Request.Quantity,
			Services:        stringsToServiceTypes(doc.Request.Services),
			Expedited:       doc.Request.Expedited,
			ScannedCopies:   doc.Request.ScannedCopies,
			PickupService:   doc.Request.PickupService,
			PickupMethod:    doc.Request.PickupMethod,
			ReturnService:   doc.Request.ReturnService,
			PremiumPickup:   doc.Request.PremiumPickup,
			PremiumDelivery: doc.Request.PremiumDelivery,
		},
		Pricing: domain.OrderPriceResult{
			BasePrice:            doc.Pricing.BasePrice,
			AdditionalFees:       doc.Pricing.AdditionalFees,
			TotalPrice:           doc.Pricing.TotalPrice,
			HasUnconfirmedPrices: doc.Pricing.HasUnconfirmedPrices,
			UnconfirmedServices:  stringsToServiceTypes(doc.Pricing.UnconfirmedServices),
			VATExempt:            doc.Pricing.VATExempt,
			MatchedCustomer:      doc.Pricing.MatchedCustomer,
		},
		Notes:     doc.Notes,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if len(doc.Pricing.Breakdown) > 0 {
		order.Pricing.Breakdown = make([]domain.PriceBreakdownLine, 0, len(doc.Pricing.Breakdown))
		for _, line := range doc.Pricing.Breakdown {
			order.Pricing.Breakdown = append(order.Pricing.Breakdown, domain.PriceBreakdownLine{
				Service:     line.Service,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Total:       line.Total,
				VATRate:     domain.VATRate(line.VATRate),
				IsTBC:       line.IsTBC,
			})
		}
	}
	return order
}

func serviceTypesToStrings(values []domain.ServiceType) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = string(value)
	}
	return out
}

func stringsToServiceTypes(values []string) []domain.ServiceType {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.ServiceType, len(values))
	for i, value := range values {
		out[i] = domain.ServiceType(value)
	}
	return out
}

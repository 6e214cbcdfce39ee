package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/doxvisum/api/internal/domain"
	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/repositories"
)

const customersCollection = "customers"

// CustomerRepository reads business customers and their negotiated prices.
type CustomerRepository struct {
	base      *pfirestore.BaseRepository[domain.Customer]
	retryOpts []pfirestore.RetryOption
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider, retryOpts ...pfirestore.RetryOption) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base:      pfirestore.NewBaseRepository[domain.Customer](provider, customersCollection, nil, decodeCustomer),
		retryOpts: retryOpts,
	}, nil
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// FindByID loads the customer document.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, errors.New("customer id is required")
	}

	var doc pfirestore.Document[domain.Customer]
	err := pfirestore.Retry(ctx, "customers.find", func(ctx context.Context) error {
		var getErr error
		doc, getErr = r.base.Get(ctx, id)
		return getErr
	}, r.retryOpts...)
	if err != nil {
		return domain.Customer{}, err
	}

	customer := doc.Data
	customer.ID = doc.ID
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = doc.CreateTime.UTC()
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = doc.UpdateTime.UTC()
	}
	return customer, nil
}

func decodeCustomer(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Customer, error) {
	data := snap.Data()
	if data == nil {
		return domain.Customer{}, errors.New("customer document is empty")
	}

	customer := domain.Customer{
		CustomerNumber: stringField(data, "customerNumber"),
		CompanyName:    stringField(data, "companyName"),
		Email:          stringField(data, "email"),
		VATExempt:      boolField(data, "vatExempt", false),
		IsActive:       boolField(data, "isActive", true),
	}
	if raw, ok := data["customPricing"].(map[string]any); ok {
		customer.CustomPricing = domain.ParseCustomPricing(raw)
	}
	if ts, ok := data["createdAt"].(time.Time); ok {
		customer.CreatedAt = ts.UTC()
	}
	if ts, ok := data["updatedAt"].(time.Time); ok {
		customer.UpdatedAt = ts.UTC()
	}
	return customer, nil
}

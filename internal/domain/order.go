package domain

import "time"

// OrderKind distinguishes legalization orders from visa orders.
type OrderKind string

const (
	OrderKindLegalization OrderKind = "legalization"
	OrderKindVisa         OrderKind = "visa"
)

// OrderStatus tracks the processing state of an order.
type OrderStatus string

const (
	OrderStatusReceived   OrderStatus = "received"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderContact holds the ordering customer's contact details.
type OrderContact struct {
	Name        string
	Email       string
	Phone       string
	CompanyName string
}

// Order is an intake record persisted with the price computed at submission time.
type Order struct {
	ID          string
	OrderNumber string
	Kind        OrderKind
	Status      OrderStatus
	CustomerID  string
	Contact     OrderContact
	Request     OrderPriceRequest
	Pricing     OrderPriceResult
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

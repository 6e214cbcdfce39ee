package services

import (
	"context"
	"time"
)

const (
	// EventOrderCreated is published after an order has been persisted.
	EventOrderCreated = "order.created"
	// EventPricingRulesAdjusted is published after a bulk adjustment changed stored rules.
	EventPricingRulesAdjusted = "pricing.rules.adjusted"
)

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) (string, error)
}

// DomainEvent is the envelope published for order and pricing changes.
type DomainEvent struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

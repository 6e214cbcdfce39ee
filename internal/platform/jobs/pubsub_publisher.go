package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel/propagation"

	"github.com/doxvisum/api/internal/platform/requestctx"
	"github.com/doxvisum/api/internal/services"
)

const eventSchemaVersion = "1"

// PubSubEventPublisher publishes domain events as JSON messages. Routing metadata goes into
// attributes so subscribers can filter without decoding the body.
type PubSubEventPublisher struct {
	topic      *pubsub.Topic
	propagator propagation.TextMapPropagator
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{topic: topic, propagator: propagation.TraceContext{}}, nil
}

// Publish blocks until the server acknowledges the message and returns its id. The event key
// doubles as ordering key when the topic was opened with ordering enabled.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event services.DomainEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.Type) == "" {
		return "", errors.New("pubsub event publisher: event type is required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := &pubsub.Message{Data: data, Attributes: p.attributes(ctx, event)}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = strings.TrimSpace(event.Key)
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			// a failed publish pauses its ordering key until resumed
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return id, nil
}

func (p *PubSubEventPublisher) attributes(ctx context.Context, event services.DomainEvent) map[string]string {
	attrs := propagation.MapCarrier{
		"eventType":     event.Type,
		"schemaVersion": eventSchemaVersion,
	}
	if key := strings.TrimSpace(event.Key); key != "" {
		attrs["key"] = key
	}
	if !event.OccurredAt.IsZero() {
		attrs["occurredAt"] = event.OccurredAt.UTC().Format(time.RFC3339)
	}
	if actor := requestctx.Actor(ctx); actor != "" {
		attrs["actorId"] = actor
	}
	p.propagator.Inject(ctx, attrs)
	return attrs
}

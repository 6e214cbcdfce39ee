package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/doxvisum/api/internal/platform/requestctx"
	"github.com/doxvisum/api/internal/services"
)

func newTestTopic(t *testing.T, srv *pstest.Server, name string) *pubsub.Topic {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return topic
}

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	publisher, err := NewPubSubEventPublisher(newTestTopic(t, srv, "dox-events"))
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.DomainEvent{
		Type:       services.EventOrderCreated,
		Key:        "DOX-2026-000042",
		OccurredAt: occurredAt,
		Payload: map[string]any{
			"orderId":    "ord_1",
			"totalPrice": 895,
		},
	}

	id, err := publisher.Publish(ctx, event)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatalf("expected message id")
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.DomainEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != services.EventOrderCreated || payload.Key != event.Key {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Fatalf("expected occurredAt %s, got %s", occurredAt, payload.OccurredAt)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventOrderCreated {
		t.Fatalf("expected eventType attribute, got %q", attrs["eventType"])
	}
	if attrs["occurredAt"] != "2026-05-06T09:00:00Z" {
		t.Fatalf("unexpected occurredAt attribute %q", attrs["occurredAt"])
	}
	if attrs["schemaVersion"] != "1" || attrs["key"] != event.Key {
		t.Fatalf("unexpected routing attributes %v", attrs)
	}
	if _, ok := attrs["traceparent"]; ok {
		t.Fatalf("expected no traceparent without an active span")
	}
}

func TestPubSubEventPublisherCarriesTraceAndActor(t *testing.T) {
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	publisher, err := NewPubSubEventPublisher(newTestTopic(t, srv, "dox-events"))
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = requestctx.WithActor(ctx, "ops-7")

	if _, err := publisher.Publish(ctx, services.DomainEvent{Type: services.EventOrderCreated, Key: "DOX-2026-000001"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	attrs := messages[0].Attributes
	if attrs["traceparent"] != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("unexpected traceparent %q", attrs["traceparent"])
	}
	if attrs["actorId"] != "ops-7" {
		t.Fatalf("expected actor attribute, got %q", attrs["actorId"])
	}
	if _, ok := attrs["occurredAt"]; ok {
		t.Fatalf("expected no occurredAt for zero time")
	}
}

func TestPubSubEventPublisherRejectsUntypedEvent(t *testing.T) {
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	publisher, err := NewPubSubEventPublisher(newTestTopic(t, srv, "dox-events"))
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	if _, err := publisher.Publish(context.Background(), services.DomainEvent{Key: "k"}); err == nil {
		t.Fatalf("expected error for missing event type")
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

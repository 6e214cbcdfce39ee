package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/doxvisum/api/internal/platform/config"
)

// ErrTopicMissing is reported by the readiness check when the configured topic does not exist.
var ErrTopicMissing = errors.New("pubsub: topic not found")

// Topic owns the client behind a publishing topic.
type Topic struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// OpenTopic connects to Pub/Sub and returns the configured topic. The topic must already exist;
// it is never created here.
func OpenTopic(ctx context.Context, cfg config.PubSubConfig, opts ...option.ClientOption) (*Topic, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("pubsub: project id is required")
	}
	topicID := strings.TrimSpace(cfg.Topic)
	if topicID == "" {
		return nil, errors.New("pubsub: topic is required")
	}

	clientOpts := append([]option.ClientOption(nil), opts...)
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = cfg.OrderingEnabled
	return &Topic{client: client, topic: topic}, nil
}

// Handle exposes the topic for publishers.
func (t *Topic) Handle() *pubsub.Topic {
	if t == nil {
		return nil
	}
	return t.topic
}

// Check reports whether the topic is reachable and exists.
func (t *Topic) Check(ctx context.Context) error {
	if t == nil || t.topic == nil {
		return errors.New("pubsub: topic not initialised")
	}
	ok, err := t.topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTopicMissing, t.topic.ID())
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (t *Topic) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	t.topic.Stop()
	return t.client.Close()
}

package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultRetryAttempts = 3
	defaultRetryInitial  = 100 * time.Millisecond
	defaultRetryMax      = time.Second
)

// RetryOption customises Retry.
type RetryOption func(*retryConfig)

type retryConfig struct {
	attempts int
	backoff  gax.Backoff
}

// WithRetryAttempts caps the number of calls made, including the first one.
func WithRetryAttempts(attempts int) RetryOption {
	return func(cfg *retryConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithRetryBackoff overrides the pause between attempts.
func WithRetryBackoff(initial, max time.Duration) RetryOption {
	return func(cfg *retryConfig) {
		if initial > 0 {
			cfg.backoff.Initial = initial
		}
		if max > 0 {
			cfg.backoff.Max = max
		}
	}
}

// Retry invokes fn with exponential backoff while it fails with a transient gRPC code
// (Unavailable, ResourceExhausted, DeadlineExceeded or Aborted). The final error is wrapped with WrapError.
func Retry(ctx context.Context, op string, fn func(ctx context.Context) error, opts ...RetryOption) error {
	if fn == nil {
		return WrapError(op, errors.New("firestore: retry function is nil"))
	}
	cfg := retryConfig{
		attempts: defaultRetryAttempts,
		backoff: gax.Backoff{
			Initial:    defaultRetryInitial,
			Max:        defaultRetryMax,
			Multiplier: 2,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	calls := 0
	retryer := func() gax.Retryer {
		return gax.OnErrorFunc(cfg.backoff, func(err error) bool {
			return calls < cfg.attempts && isTransient(ctx, err)
		})
	}

	err := gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		calls++
		return fn(ctx)
	}, gax.WithRetry(retryer))
	return WrapError(op, err)
}

func isTransient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

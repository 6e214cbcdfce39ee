package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
	defaultTxOp       = "transaction"
)

// TxFunc runs inside a Firestore transaction. It may be invoked several times when
// Firestore retries on contention, so it must not keep state across calls.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises RunTransaction.
type TxOption func(*txConfig)

type txConfig struct {
	op       string
	attempts int
	timeout  time.Duration
	readOnly bool
}

// WithTxAttempts overrides how often Firestore retries a contended transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithTxOp labels errors returned by the transaction, e.g. "pricing_rules.adjust".
func WithTxOp(op string) TxOption {
	return func(cfg *txConfig) {
		if op != "" {
			cfg.op = op
		}
	}
}

// WithTxReadOnly runs the transaction as a consistent read-only snapshot.
func WithTxReadOnly() TxOption {
	return func(cfg *txConfig) {
		cfg.readOnly = true
	}
}

// RunTransaction executes fn in a transaction on client and classifies the outcome with WrapError.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	cfg := txConfig{op: defaultTxOp, attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	switch {
	case client == nil:
		return WrapError(cfg.op, errors.New("firestore: client is nil"))
	case fn == nil:
		return WrapError(cfg.op, errors.New("firestore: transaction function is nil"))
	}

	txCtx, cancel := boundedContext(ctx, cfg.timeout)
	defer cancel()

	txOpts := []firestore.TransactionOption{firestore.MaxAttempts(cfg.attempts)}
	if cfg.readOnly {
		txOpts = append(txOpts, firestore.ReadOnly)
	}
	return WrapError(cfg.op, client.RunTransaction(txCtx, fn, txOpts...))
}

// boundedContext shortens ctx to timeout unless the caller already set an earlier deadline.
func boundedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

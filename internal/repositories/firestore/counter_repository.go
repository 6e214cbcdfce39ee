package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// advance moves the counter forward by step, or by its stored step when step is zero.
func (d *counterDocument) advance(id string, step int64, now time.Time) (int64, error) {
	increment := step
	if increment <= 0 {
		increment = max(d.Step, 1)
	}
	next := d.CurrentValue + increment
	if d.MaxValue != nil && next > *d.MaxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted,
			fmt.Sprintf("counter %s reached its limit of %d", id, *d.MaxValue), nil)
	}
	d.CurrentValue = next
	d.Step = increment
	d.UpdatedAt = now
	return next, nil
}

// CounterRepository keeps one document per sequence, e.g. "orders:2026", and increments it
// inside a transaction so concurrent order intake never shares a number.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

func NewCounterRepository(provider *pfirestore.Provider, clock func() time.Time) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
		clock:    clock,
	}, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id, err := counterKey(counterID)
	if err != nil {
		return 0, err
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must not be negative, got %d", step), nil)
	}

	now := r.clock().UTC()
	var value int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		var doc counterDocument
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			next, err := doc.advance(id, step, now)
			if err != nil {
				return err
			}
			value = next
			return tx.Create(ref, doc)
		case err != nil:
			return err
		}
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode counter %s: %w", id, err)
		}
		next, err := doc.advance(id, step, now)
		if err != nil {
			return err
		}
		value = next
		return tx.Set(ref, doc)
	}, pfirestore.WithTxOp("counters.next"))
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, err
	}
	return value, nil
}

// Configure merges the given settings into the counter, creating it when absent. Zero or nil
// fields leave the stored value untouched.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id, err := counterKey(counterID)
	if err != nil {
		return err
	}

	updates := map[string]any{"updatedAt": r.clock().UTC()}
	if cfg.Step > 0 {
		updates["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		updates["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		updates["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, updates, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}

func counterKey(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return "", repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	case strings.Contains(id, "/"):
		return "", repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("counter id %q must not contain '/'", id), nil)
	}
	return id, nil
}

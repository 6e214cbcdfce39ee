package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/doxvisum/api/internal/repositories"
)

func TestCounterDocumentAdvance(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	var fresh counterDocument
	if got, err := fresh.advance("orders:2026", 0, now); err != nil || got != 1 {
		t.Fatalf("expected first value 1, got %d, %v", got, err)
	}
	if fresh.Step != 1 || !fresh.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected document %+v", fresh)
	}

	stored := counterDocument{CurrentValue: 10, Step: 5}
	if got, _ := stored.advance("c", 0, now); got != 15 {
		t.Fatalf("expected stored step to apply, got %d", got)
	}
	if got, _ := stored.advance("c", 2, now); got != 17 || stored.Step != 2 {
		t.Fatalf("expected explicit step to win, got %d step %d", got, stored.Step)
	}
}

func TestCounterDocumentAdvanceRespectsLimit(t *testing.T) {
	limit := int64(3)
	doc := counterDocument{CurrentValue: 3, MaxValue: &limit}

	_, err := doc.advance("orders:2026", 1, time.Now())
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) || counterErr.Code != repositories.CounterErrorExhausted {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if !counterErr.IsConflict() {
		t.Fatalf("expected exhausted counters to report a conflict")
	}
	if doc.CurrentValue != 3 {
		t.Fatalf("expected value to stay at 3, got %d", doc.CurrentValue)
	}
}

func TestCounterKey(t *testing.T) {
	if id, err := counterKey(" orders:2026 "); err != nil || id != "orders:2026" {
		t.Fatalf("unexpected key %q, %v", id, err)
	}
	for _, raw := range []string{"", "  ", "orders/2026"} {
		if _, err := counterKey(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

package index

import (
	"context"
	"time"

	"github.com/locus-lens/locus/internal/models"
)

// WithTimeout bounds every call on idx by d. A non-positive d returns idx unchanged.
func WithTimeout(idx Index, d time.Duration) Index {
	if d <= 0 {
		return idx
	}
	return &timeoutIndex{next: idx, timeout: d}
}

type timeoutIndex struct {
	next    Index
	timeout time.Duration
}

func (t *timeoutIndex) EnsureCollection(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.EnsureCollection(ctx)
}

func (t *timeoutIndex) Exists(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Exists(ctx)
}

func (t *timeoutIndex) Upsert(ctx context.Context, record models.ItemRecord) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Upsert(ctx, record)
}

func (t *timeoutIndex) Search(ctx context.Context, vec []float32, category *string, limit int) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Search(ctx, vec, category, limit)
}

func (t *timeoutIndex) HasFilename(ctx context.Context, filename string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.HasFilename(ctx, filename)
}

func (t *timeoutIndex) Count(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Count(ctx)
}

func (t *timeoutIndex) Close() error { return t.next.Close() }

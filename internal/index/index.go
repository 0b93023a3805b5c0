// Package index stores catalog items and answers nearest neighbour queries.
//
// Two backends implement Index: Qdrant for real deployments and an in-process
// brute force store for development and tests.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/locus-lens/locus/internal/models"
	"github.com/locus-lens/locus/internal/vector"
)

const (
	// DefaultCollection is the collection holding catalog items.
	DefaultCollection = "locus_items"
	// DefaultDimension is the embedding width of the collection.
	DefaultDimension = 512
	// DefaultLimit is the number of matches returned by a search.
	DefaultLimit = 25
)

var (
	// ErrUnavailable marks failures reaching the index service.
	ErrUnavailable = errors.New("vector index unavailable")
	// ErrInvalidVector is returned for vectors of the wrong width or not unit length.
	ErrInvalidVector = errors.New("invalid vector")
)

// Hit is one search result with the stored payload
type Hit struct {
	Score  float64
	Record models.ItemRecord
}

// Index is a named vector collection of catalog items
type Index interface {
	// EnsureCollection creates the collection unless it exists and reports whether it was created.
	EnsureCollection(ctx context.Context) (bool, error)
	Exists(ctx context.Context) (bool, error)
	Upsert(ctx context.Context, record models.ItemRecord) error
	// Search returns up to limit hits by descending cosine score. A non-nil
	// category restricts hits to records whose name or category tag mention it.
	Search(ctx context.Context, vec []float32, category *string, limit int) ([]Hit, error)
	HasFilename(ctx context.Context, filename string) (bool, error)
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// checkVector enforces the collection width and unit length.
func checkVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: %d dimensions, expected %d", ErrInvalidVector, len(vec), dim)
	}
	if n := vector.Norm(vec); math.Abs(n-1) > 1e-3 {
		return fmt.Errorf("%w: norm %.4f", ErrInvalidVector, n)
	}
	return nil
}

// matchesCategory mirrors a full-text match of term against the indexed text fields.
func matchesCategory(r models.ItemRecord, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.Name), term) {
		return true
	}
	return r.CategoryTag != nil && strings.Contains(strings.ToLower(*r.CategoryTag), term)
}

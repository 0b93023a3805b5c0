// Package search answers "what in the catalog looks like this" queries.
package search

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/locus-lens/locus/internal/imageutil"
	"github.com/locus-lens/locus/internal/index"
	"github.com/locus-lens/locus/internal/isolation"
	"github.com/locus-lens/locus/internal/models"
)

// Unknown replaces payload fields missing from a stored record.
const Unknown = "Unknown"

// Isolator turns an image into an item embedding. Implemented by isolation.Pipeline.
type Isolator interface {
	ProcessImage(ctx context.Context, img image.Image) (isolation.Result, error)
}

// Service runs similarity searches against the index
type Service struct {
	index    index.Index
	isolator Isolator
	limit    int
}

// NewService returns a search service. limit <= 0 uses index.DefaultLimit.
func NewService(idx index.Index, isolator Isolator, limit int) *Service {
	if limit <= 0 {
		limit = index.DefaultLimit
	}
	return &Service{index: idx, isolator: isolator, limit: limit}
}

// Search returns the nearest catalog items to vec, best first. A nil category
// searches the whole catalog.
func (s *Service) Search(ctx context.Context, vec []float32, category *string) ([]models.Match, error) {
	hits, err := s.index.Search(ctx, vec, category, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	matches := make([]models.Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, toMatch(h))
	}
	return matches, nil
}

// SearchImage isolates the item in data, optionally restricted to crop, and
// searches for it. Images without a usable item give an empty response.
func (s *Service) SearchImage(ctx context.Context, data []byte, crop *models.Box) (models.SearchResponse, error) {
	empty := models.SearchResponse{Matches: []models.Match{}}

	img, err := imageutil.Decode(data)
	if err != nil {
		slog.Warn("Not a valid search image", "err", err)
		return empty, nil
	}

	if crop != nil {
		cropped, err := imageutil.Crop(img, *crop)
		if err != nil {
			slog.Warn("Ignoring search crop", "box", *crop, "err", err)
			return empty, nil
		}
		img = cropped
	}

	result, err := s.isolator.ProcessImage(ctx, img)
	if err != nil {
		return empty, err
	}
	if !result.OK() {
		return empty, nil
	}

	matches, err := s.Search(ctx, result.Vector, result.Category)
	if err != nil {
		return empty, err
	}

	slog.Info("Search complete", "matches", len(matches), "category", derefOr(result.Category, "none"))
	return models.SearchResponse{
		Matches:          matches,
		DebugImage:       result.DebugImage,
		DetectedCategory: result.Category,
	}, nil
}

func toMatch(h index.Hit) models.Match {
	r := h.Record
	return models.Match{
		Name:          orUnknown(r.Name),
		Store:         orUnknown(r.Store),
		Level:         orUnknown(r.Level),
		Mall:          orUnknown(r.Mall),
		Score:         h.Score,
		ImageFilename: orUnknown(r.Filename),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

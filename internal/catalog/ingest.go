// Package catalog loads catalog manifests and ingests catalog images into the
// vector index.
package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/locus-lens/locus/internal/isolation"
	"github.com/locus-lens/locus/internal/index"
	"github.com/locus-lens/locus/internal/models"
)

// ErrNoItem is returned when no item could be isolated from a catalog image.
var ErrNoItem = errors.New("no item found in image")

// Isolator turns image bytes into an item embedding. Implemented by isolation.Pipeline.
type Isolator interface {
	Process(ctx context.Context, data []byte) (isolation.Result, error)
}

// Categorizer picks a vocabulary label for a PNG image, nil when unsure
type Categorizer func(ctx context.Context, png []byte) (*string, error)

// Metadata describes a catalog item
type Metadata struct {
	Name     string
	Store    string
	Level    string
	Mall     string
	Filename string
}

// Options configures an Ingestor
type Options struct {
	ImageDir     string
	Directory    Directory
	Mall         string
	DefaultLevel string
	// Categorizer is consulted when the classifier gives no category. Optional.
	Categorizer Categorizer
}

// Summary counts the outcome of a bulk ingest
type Summary struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Ingestor embeds catalog images and stores them in the index
type Ingestor struct {
	isolator Isolator
	index    index.Index
	opts     Options
}

func NewIngestor(isolator Isolator, idx index.Index, opts Options) *Ingestor {
	if opts.DefaultLevel == "" {
		opts.DefaultLevel = "L1"
	}
	if opts.Directory == nil {
		opts.Directory = Directory{}
	}
	return &Ingestor{isolator: isolator, index: idx, opts: opts}
}

// Add isolates the item in data and upserts it with meta under a fresh id.
func (in *Ingestor) Add(ctx context.Context, data []byte, meta Metadata) (models.AddResponse, error) {
	result, err := in.isolator.Process(ctx, data)
	if err != nil {
		return models.AddResponse{}, err
	}
	if !result.OK() {
		return models.AddResponse{}, fmt.Errorf("%w: %s", ErrNoItem, meta.Filename)
	}

	category := result.Category
	if category == nil && in.opts.Categorizer != nil && result.DebugImage != nil {
		category = in.categorize(ctx, *result.DebugImage, meta.Filename)
	}

	record := models.ItemRecord{
		ID:          uuid.NewString(),
		Vector:      result.Vector,
		Name:        meta.Name,
		Store:       meta.Store,
		Level:       meta.Level,
		Mall:        meta.Mall,
		Filename:    meta.Filename,
		CategoryTag: category,
	}
	if err := in.index.Upsert(ctx, record); err != nil {
		return models.AddResponse{}, fmt.Errorf("failed to store %s: %w", meta.Filename, err)
	}

	tag := "none"
	if category != nil {
		tag = *category
	}
	slog.Info("Item added", "id", record.ID, "filename", meta.Filename, "store", meta.Store, "category", tag)
	return models.AddResponse{
		ID:          record.ID,
		Filename:    meta.Filename,
		CategoryTag: category,
		Message:     "Item added",
	}, nil
}

func (in *Ingestor) categorize(ctx context.Context, debugImage, filename string) *string {
	png, err := base64.StdEncoding.DecodeString(debugImage)
	if err != nil {
		return nil
	}
	category, err := in.opts.Categorizer(ctx, png)
	if err != nil {
		slog.Warn("Provider categorization failed", "filename", filename, "err", err)
		return nil
	}
	return category
}

// Metadata fills the blanks of e from its filename, the mall and the directory
func (in *Ingestor) Metadata(e Entry) Metadata {
	m := Metadata{
		Name:     e.Name,
		Store:    e.Store,
		Level:    e.Level,
		Mall:     e.Mall,
		Filename: e.Filename,
	}
	if m.Name == "" {
		m.Name = NameFromFilename(e.Filename)
	}
	if m.Store == "" {
		m.Store = StoreFromFilename(e.Filename)
	}
	if m.Mall == "" {
		m.Mall = in.opts.Mall
	}
	if m.Level == "" {
		m.Level = in.opts.Directory.Level(m.Mall, m.Store, in.opts.DefaultLevel)
	}
	return m
}

// Run ingests entries, skipping filenames already in the index. Images that
// cannot be read or hold no item are counted as failed; an unavailable model
// server or index aborts the run.
func (in *Ingestor) Run(ctx context.Context, entries []Entry) (Summary, error) {
	var summary Summary

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		exists, err := in.index.HasFilename(ctx, e.Filename)
		if err != nil {
			return summary, fmt.Errorf("failed to check %s: %w", e.Filename, err)
		}
		if exists {
			slog.Info("Skipping, already indexed", "filename", e.Filename)
			summary.Skipped++
			continue
		}

		data, err := os.ReadFile(filepath.Join(in.opts.ImageDir, filepath.Base(e.Filename)))
		if err != nil {
			slog.Error("Unable to read image", "filename", e.Filename, "err", err)
			summary.Failed++
			continue
		}

		if _, err := in.Add(ctx, data, in.Metadata(e)); err != nil {
			if errors.Is(err, ErrNoItem) || errors.Is(err, index.ErrInvalidVector) {
				slog.Error("Unable to ingest image", "filename", e.Filename, "err", err)
				summary.Failed++
				continue
			}
			return summary, err
		}
		summary.Added++
	}

	slog.Info("Ingest complete", "added", summary.Added, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

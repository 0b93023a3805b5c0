// Package isolation turns a photo of a single item into a normalized
// embedding: background removal, ghost rejection, recrop to content,
// white compositing, embedding and a confidence gated category.
package isolation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/imageutil"
	"github.com/locus-lens/locus/internal/vector"
)

const (
	// DefaultMaxSide bounds the longer image side before background removal.
	DefaultMaxSide = 512
	// DefaultCategoryThreshold is the classifier confidence needed to report a category.
	DefaultCategoryThreshold = 0.45
	// DefaultDimension is the embedding width expected by the index.
	DefaultDimension = 512
)

// Embedder computes an image embedding
type Embedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
}

// VectorClassifier labels a normalized embedding. Implemented by classifier.Classifier.
type VectorClassifier interface {
	ClassifyVector(v []float32) (classifier.Prediction, error)
}

// Options tunes the pipeline. Zero values take the defaults.
type Options struct {
	MaxSide           int
	CategoryThreshold float64
	Dimension         int
}

// Result is the outcome of isolating one item. A zero Result means the input
// held no usable item.
type Result struct {
	Vector     []float32
	Category   *string
	Prediction classifier.Prediction
	DebugImage *string
}

// OK reports whether an embedding was produced
func (r Result) OK() bool {
	return r.Vector != nil
}

// Pipeline isolates and embeds items
type Pipeline struct {
	remover    BackgroundRemover
	embedder   Embedder
	classifier VectorClassifier
	opts       Options
}

// NewPipeline wires the pipeline stages
func NewPipeline(remover BackgroundRemover, embedder Embedder, vc VectorClassifier, opts Options) *Pipeline {
	if opts.MaxSide <= 0 {
		opts.MaxSide = DefaultMaxSide
	}
	if opts.CategoryThreshold <= 0 {
		opts.CategoryThreshold = DefaultCategoryThreshold
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	return &Pipeline{
		remover:    remover,
		embedder:   embedder,
		classifier: vc,
		opts:       opts,
	}
}

// Process decodes data and isolates the item in it. Undecodable or empty
// images give a zero Result and a nil error; an error means a collaborator
// (background remover, embedder) could not be used.
func (p *Pipeline) Process(ctx context.Context, data []byte) (Result, error) {
	img, err := imageutil.Decode(data)
	if err != nil {
		slog.Warn("Not a valid image", "err", err)
		return Result{}, nil
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage runs the pipeline on a decoded image.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (Result, error) {
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) > p.opts.MaxSide {
		img = imaging.Fit(img, p.opts.MaxSide, p.opts.MaxSide, imaging.Lanczos)
		slog.Debug("Resized input", "from_width", b.Dx(), "from_height", b.Dy(),
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	}

	cutout, err := p.remover.RemoveBackground(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("failed to remove background: %w", err)
	}

	content, ok := imageutil.AlphaBounds(cutout)
	if !ok {
		slog.Info("Ghost image rejected, no opaque pixels after background removal")
		return Result{}, nil
	}

	item := imaging.Crop(cutout, content)
	flat := imaging.Overlay(imaging.New(item.Bounds().Dx(), item.Bounds().Dy(), color.White), item, image.Pt(0, 0), 1.0)

	raw, err := p.embedder.EmbedImage(ctx, flat)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed item: %w", err)
	}
	if len(raw) != p.opts.Dimension {
		return Result{}, fmt.Errorf("embedding has %d dimensions, expected %d", len(raw), p.opts.Dimension)
	}
	vec, err := vector.Normalize(raw)
	if err != nil {
		return Result{}, fmt.Errorf("failed to normalize embedding: %w", err)
	}

	result := Result{Vector: vec}
	if p.classifier != nil {
		pred, err := p.classifier.ClassifyVector(vec)
		if err != nil {
			return Result{}, fmt.Errorf("failed to classify item: %w", err)
		}
		result.Prediction = pred
		result.Category = Gate(result.Prediction, p.opts.CategoryThreshold)
	}

	if result.Category != nil {
		slog.Info("Item isolated", "category", *result.Category, "confidence", result.Prediction.Confidence)
	} else {
		slog.Info("Item isolated without category", "label", result.Prediction.Label, "confidence", result.Prediction.Confidence)
	}

	debug, err := imageutil.Base64PNG(flat)
	if err != nil {
		slog.Warn("Failed to encode debug image", "err", err)
	} else {
		result.DebugImage = &debug
	}

	return result, nil
}

// Gate returns the predicted label when its confidence reaches threshold, nil otherwise.
func Gate(pred classifier.Prediction, threshold float64) *string {
	if pred.Label == "" || pred.Confidence < threshold {
		return nil
	}
	label := pred.Label
	return &label
}

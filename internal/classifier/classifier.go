// Package classifier implements zero-shot labeling of image regions against a
// fixed category vocabulary.
//
// Label embeddings are computed once by New and never change afterwards, so a
// Classifier is safe for concurrent use.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"

	"github.com/locus-lens/locus/internal/vector"
)

// DefaultLabels is the category vocabulary used for search filtering and ingestion tags.
var DefaultLabels = []string{
	"dress", "pants", "jeans", "shirt", "t-shirt",
	"jacket", "coat", "shoes", "sneakers", "bag",
	"handbag", "skirt", "shorts", "hat", "glasses", "watch",
}

// ErrDimensionMismatch is returned when an image embedding and the label
// embeddings do not share a width.
var ErrDimensionMismatch = errors.New("embedding width mismatch")

// DefaultLogitScale sharpens cosine similarities before the softmax.
const DefaultLogitScale = 100.0

// ImageEmbedder computes an image embedding
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
}

// TextEmbedder computes one embedding per text, in the same space as ImageEmbedder
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Prediction is the winning label and its softmax probability
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassifyFunc labels an image region. Detectors receive one from the orchestrator.
type ClassifyFunc func(ctx context.Context, img image.Image) (Prediction, error)

// Classifier labels images by similarity to precomputed label embeddings
type Classifier struct {
	labels       []string
	textFeatures [][]float32
	embedder     ImageEmbedder
	scale        float64
}

// New embeds every label once and returns a ready classifier.
func New(ctx context.Context, text TextEmbedder, embedder ImageEmbedder, labels []string, scale float64) (*Classifier, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("classifier needs at least one label")
	}
	if scale <= 0 {
		scale = DefaultLogitScale
	}

	raw, err := text.EmbedTexts(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to embed labels: %w", err)
	}

	if len(raw) != len(labels) {
		return nil, fmt.Errorf("got %d label embeddings for %d labels", len(raw), len(labels))
	}

	features := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != len(raw[0]) {
			return nil, fmt.Errorf("%w: label %q has %d dimensions, %q has %d",
				ErrDimensionMismatch, labels[i], len(v), labels[0], len(raw[0]))
		}
		n, err := vector.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", labels[i], err)
		}
		features[i] = n
	}

	slog.Info("Label embeddings ready", "labels", len(labels), "dim", len(features[0]))

	return &Classifier{
		labels:       slices.Clone(labels),
		textFeatures: features,
		embedder:     embedder,
		scale:        scale,
	}, nil
}

// Labels returns a copy of the vocabulary.
func (c *Classifier) Labels() []string {
	return slices.Clone(c.labels)
}

// Contains reports whether label is part of the vocabulary.
func (c *Classifier) Contains(label string) bool {
	return slices.Contains(c.labels, label)
}

// Classify embeds img and returns the best label.
func (c *Classifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	raw, err := c.embedder.EmbedImage(ctx, img)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to embed image: %w", err)
	}
	v, err := vector.Normalize(raw)
	if err != nil {
		return Prediction{}, err
	}
	return c.ClassifyVector(v)
}

// Dimension is the width of the label embeddings
func (c *Classifier) Dimension() int { return len(c.textFeatures[0]) }

// ClassifyVector scores an already normalized image embedding against the vocabulary.
func (c *Classifier) ClassifyVector(v []float32) (Prediction, error) {
	if len(v) != c.Dimension() {
		return Prediction{}, fmt.Errorf("%w: image has %d dimensions, labels have %d", ErrDimensionMismatch, len(v), c.Dimension())
	}

	sims := make([]float64, len(c.textFeatures))
	for i, t := range c.textFeatures {
		sims[i] = vector.Dot(v, t)
	}
	probs := vector.Softmax(sims, c.scale)
	best := vector.ArgMax(probs)

	return Prediction{
		Label:      c.labels[best],
		Confidence: probs[best],
	}, nil
}

// Package fusion merges the output of every registered detector into one
// deduplicated list of item regions.
package fusion

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/detectors"
	"github.com/locus-lens/locus/internal/imageutil"
	"github.com/locus-lens/locus/internal/models"
)

// DefaultFallbackThreshold is the classifier confidence needed to report the whole image as one item.
const DefaultFallbackThreshold = 0.35

// FallbackSource marks the synthesized whole-image detection
const FallbackSource = "fallback"

// Options tunes the fusion stage
type Options struct {
	IoUThreshold      float64
	FallbackThreshold float64
}

// Engine runs detectors and fuses their results
type Engine struct {
	detectors []detectors.Detector
	classify  classifier.ClassifyFunc
	opts      Options
}

// NewEngine returns an engine over the given registry. Zero options take the defaults.
func NewEngine(registry []detectors.Detector, classify classifier.ClassifyFunc, opts Options) *Engine {
	if opts.IoUThreshold <= 0 {
		opts.IoUThreshold = DefaultIoUThreshold
	}
	if opts.FallbackThreshold <= 0 {
		opts.FallbackThreshold = DefaultFallbackThreshold
	}
	return &Engine{
		detectors: registry,
		classify:  classify,
		opts:      opts,
	}
}

// DetectObjects decodes data and returns every distinct item region found in it.
// Undecodable input yields an empty response with zero dimensions.
func (e *Engine) DetectObjects(ctx context.Context, data []byte) models.DetectResponse {
	img, err := imageutil.Decode(data)
	if err != nil {
		slog.Warn("Unable to decode image for detection", "err", err)
		return models.DetectResponse{Detections: []models.Detection{}}
	}

	return e.DetectImage(ctx, img)
}

// DetectImage runs the pipeline on an already decoded image. The response is
// marked Degraded when a detector or the fallback classification failed.
func (e *Engine) DetectImage(ctx context.Context, img image.Image) models.DetectResponse {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	all, degraded := e.runDetectors(ctx, img)
	if len(all) == 0 {
		fb, ok, err := e.fallback(ctx, img, width, height)
		if err != nil {
			slog.Warn("Whole image classification failed", "err", err)
			degraded = true
		}
		if ok {
			all = append(all, fb)
		}
	}

	kept := NMS(all, e.opts.IoUThreshold)
	slog.Info("Detection complete", "candidates", len(all), "kept", len(kept), "width", width, "height", height, "degraded", degraded)

	return models.DetectResponse{
		Detections:  kept,
		ImageWidth:  width,
		ImageHeight: height,
		Degraded:    degraded,
	}
}

// runDetectors runs every detector concurrently and concatenates the results
// in registry order. It reports whether any detector failed. A detector that
// hits a cancelled or expired context cancels the ones still running.
func (e *Engine) runDetectors(ctx context.Context, img image.Image) ([]models.Detection, bool) {
	results := make([][]models.Detection, len(e.detectors))
	var failed atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		g.Go(func() error {
			dets, err := detect(gctx, d, img, e.classify)
			if err == nil {
				results[i] = dets
				return nil
			}

			slog.Warn("Detector failed", "detector", d.Name(), "err", err)
			failed.Store(true)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		failed.Store(true)
	}

	var all []models.Detection
	for _, r := range results {
		all = append(all, r...)
	}
	return all, failed.Load()
}

func detect(ctx context.Context, d detectors.Detector, img image.Image, classify classifier.ClassifyFunc) ([]models.Detection, error) {
	if f, ok := d.(detectors.FallibleDetector); ok {
		return f.TryDetect(ctx, img, classify)
	}
	return d.Detect(ctx, img, classify), nil
}

func (e *Engine) fallback(ctx context.Context, img image.Image, width, height int) (models.Detection, bool, error) {
	if e.classify == nil {
		return models.Detection{}, false, nil
	}

	pred, err := e.classify(ctx, img)
	if err != nil {
		return models.Detection{}, false, err
	}
	if pred.Confidence < e.opts.FallbackThreshold {
		slog.Debug("Whole image fallback below threshold", "label", pred.Label, "confidence", pred.Confidence)
		return models.Detection{}, false, nil
	}

	box := models.Box{0, 0, width, height}
	if !box.Valid() {
		return models.Detection{}, false, nil
	}

	return models.Detection{
		BBox:        box,
		Label:       pred.Label,
		SearchLabel: pred.Label,
		Score:       math.Round(pred.Confidence*1000) / 1000,
		Source:      FallbackSource,
	}, true, nil
}

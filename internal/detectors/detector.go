// Package detectors wraps remote region proposal models behind a single
// Detector contract.
//
// A Detector never fails past its boundary: proposal errors, classification
// errors and unusable boxes are logged and produce fewer (or zero) detections.
// Callers that need to tell an outage from an empty image use FallibleDetector.
package detectors

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/imageutil"
	"github.com/locus-lens/locus/internal/inference"
	"github.com/locus-lens/locus/internal/models"
)

// DefaultMinArea is the smallest box area, in px², worth reporting.
const DefaultMinArea = 1500

// Detector finds candidate item regions in an image
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) []models.Detection
}

// FallibleDetector is a Detector that can also report why a run produced nothing
type FallibleDetector interface {
	Detector
	TryDetect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) ([]models.Detection, error)
}

// RegionProposer runs a named detection model. Implemented by inference.Client.
type RegionProposer interface {
	ProposeRegions(ctx context.Context, model string, img image.Image) ([]inference.Region, error)
}

// Table describes a detection model: which model to call, how to name its
// classes and which candidates to keep.
type Table struct {
	Name     string
	Model    string
	Source   string
	Labels   map[int]string
	Fallback string       // label for class ids missing from Labels
	Allow    map[int]bool // nil keeps every class id
	MinScore float64
	MinArea  int
}

// TableDetector is a Detector driven by a Table
type TableDetector struct {
	table    Table
	proposer RegionProposer
}

// NewTableDetector returns a detector for table backed by proposer
func NewTableDetector(table Table, proposer RegionProposer) *TableDetector {
	if table.MinArea <= 0 {
		table.MinArea = DefaultMinArea
	}
	return &TableDetector{table: table, proposer: proposer}
}

func (d *TableDetector) Name() string { return d.table.Name }

// Table returns the detector's configuration
func (d *TableDetector) Table() Table { return d.table }

// Detect proposes regions on img, filters them and labels every survivor with classify.
func (d *TableDetector) Detect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) []models.Detection {
	detections, err := d.TryDetect(ctx, img, classify)
	if err != nil {
		slog.Warn("Detector failed", "detector", d.table.Name, "err", err)
		return []models.Detection{}
	}
	return detections
}

// TryDetect is Detect without the error absorption. A failed proposal or
// region classification returns the error and no detections.
func (d *TableDetector) TryDetect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) ([]models.Detection, error) {
	detections, err := d.detect(ctx, img, classify)
	if err != nil {
		return nil, err
	}

	slog.Debug("Detector finished", "detector", d.table.Name, "detections", len(detections))
	return detections, nil
}

func (d *TableDetector) detect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) ([]models.Detection, error) {
	regions, err := d.proposer.ProposeRegions(ctx, d.table.Model, img)
	if err != nil {
		return nil, fmt.Errorf("failed to propose regions: %w", err)
	}

	bounds := img.Bounds()
	detections := []models.Detection{}
	for _, r := range regions {
		if r.Score < d.table.MinScore {
			continue
		}
		if d.table.Allow != nil && !d.table.Allow[r.ClassID] {
			continue
		}

		box := toBox(r.Box).Clamp(bounds.Dx(), bounds.Dy())
		if !box.Valid() || box.Area() < d.table.MinArea {
			continue
		}

		label, ok := d.table.Labels[r.ClassID]
		if !ok {
			label = d.table.Fallback
		}

		searchLabel := label
		if classify != nil {
			crop, err := imageutil.Crop(img, box)
			if err != nil {
				return nil, err
			}
			pred, err := classify(ctx, crop)
			if err != nil {
				return nil, fmt.Errorf("failed to classify region: %w", err)
			}
			searchLabel = pred.Label
		}

		detections = append(detections, models.Detection{
			BBox:        box,
			Label:       label,
			SearchLabel: searchLabel,
			Score:       round3(r.Score),
			Source:      d.table.Source,
		})
	}

	return detections, nil
}

func toBox(b [4]float64) models.Box {
	return models.Box{int(b[0]), int(b[1]), int(b[2]), int(b[3])}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

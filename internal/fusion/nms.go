package fusion

import (
	"slices"

	"github.com/locus-lens/locus/internal/models"
)

// DefaultIoUThreshold is the overlap at which the lower scored of two detections is dropped.
const DefaultIoUThreshold = 0.40

// IoU returns the intersection over union of a and b, 0 when either is empty.
func IoU(a, b models.Box) float64 {
	inter := models.Box{
		max(a.X1(), b.X1()),
		max(a.Y1(), b.Y1()),
		min(a.X2(), b.X2()),
		min(a.Y2(), b.Y2()),
	}.Area()
	if inter == 0 {
		return 0
	}

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NMS performs greedy non-maximum suppression. Detections are ordered by
// descending score (stable on ties); each kept detection removes every later
// one overlapping it with IoU >= threshold. Every pair of survivors therefore
// has IoU < threshold. The input slice is not modified.
func NMS(detections []models.Detection, threshold float64) []models.Detection {
	remaining := slices.Clone(detections)
	slices.SortStableFunc(remaining, func(a, b models.Detection) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	kept := make([]models.Detection, 0, len(remaining))
	for len(remaining) > 0 {
		best := remaining[0]
		kept = append(kept, best)

		next := remaining[:0:0]
		for _, d := range remaining[1:] {
			if IoU(best.BBox, d.BBox) < threshold {
				next = append(next, d)
			}
		}
		remaining = next
	}

	return kept
}

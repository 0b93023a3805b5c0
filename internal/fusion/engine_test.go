package fusion

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/detectors"
	"github.com/locus-lens/locus/internal/inference"
	"github.com/locus-lens/locus/internal/models"
)

type staticDetector struct {
	name       string
	detections []models.Detection
}

func (d staticDetector) Name() string { return d.name }

func (d staticDetector) Detect(context.Context, image.Image, classifier.ClassifyFunc) []models.Detection {
	return d.detections
}

// erroringDetector fails with err, or waits for cancellation when block is set
type erroringDetector struct {
	name  string
	err   error
	block bool
}

func (d erroringDetector) Name() string { return d.name }

func (d erroringDetector) Detect(ctx context.Context, img image.Image, classify classifier.ClassifyFunc) []models.Detection {
	dets, _ := d.TryDetect(ctx, img, classify)
	return dets
}

func (d erroringDetector) TryDetect(ctx context.Context, _ image.Image, _ classifier.ClassifyFunc) ([]models.Detection, error) {
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, d.err
}

func classifyAs(label string, confidence float64) classifier.ClassifyFunc {
	return func(context.Context, image.Image) (classifier.Prediction, error) {
		return classifier.Prediction{Label: label, Confidence: confidence}, nil
	}
}

func encodedImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDetectObjects_FusesAndSuppresses(t *testing.T) {
	clothing := staticDetector{name: "clothing", detections: []models.Detection{
		det(0.9, models.Box{0, 0, 100, 100}),
		det(0.6, models.Box{200, 100, 300, 200}),
	}}
	accessory := staticDetector{name: "accessory", detections: []models.Detection{
		det(0.5, models.Box{0, 0, 100, 80}),
	}}

	engine := NewEngine([]detectors.Detector{clothing, accessory}, classifyAs("dress", 0.99), Options{})
	resp := engine.DetectObjects(context.Background(), encodedImage(t, 320, 240))

	if resp.ImageWidth != 320 || resp.ImageHeight != 240 {
		t.Errorf("dimensions: got %dx%d", resp.ImageWidth, resp.ImageHeight)
	}
	if len(resp.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %+v", resp.Detections)
	}
	if resp.Detections[0].Score != 0.9 || resp.Detections[1].Score != 0.6 {
		t.Errorf("unexpected survivors %+v", resp.Detections)
	}
}

func TestDetectObjects_OrderIndependent(t *testing.T) {
	a := staticDetector{name: "a", detections: []models.Detection{
		det(0.8, models.Box{0, 0, 100, 100}),
		det(0.3, models.Box{150, 0, 250, 100}),
	}}
	b := staticDetector{name: "b", detections: []models.Detection{
		det(0.7, models.Box{10, 10, 100, 100}),
		det(0.4, models.Box{0, 150, 90, 230}),
	}}
	data := encodedImage(t, 300, 300)

	forward := NewEngine([]detectors.Detector{a, b}, nil, Options{}).DetectObjects(context.Background(), data)
	reverse := NewEngine([]detectors.Detector{b, a}, nil, Options{}).DetectObjects(context.Background(), data)

	if len(forward.Detections) != len(reverse.Detections) {
		t.Fatalf("result depends on registry order: %d vs %d", len(forward.Detections), len(reverse.Detections))
	}
	for i := range forward.Detections {
		if forward.Detections[i] != reverse.Detections[i] {
			t.Errorf("detection %d differs: %+v vs %+v", i, forward.Detections[i], reverse.Detections[i])
		}
	}
}

func TestDetectObjects_Fallback(t *testing.T) {
	empty := staticDetector{name: "empty", detections: []models.Detection{}}
	data := encodedImage(t, 120, 90)

	tests := []struct {
		name       string
		confidence float64
		want       int
	}{
		{"confident", 0.62, 1},
		{"at threshold", 0.35, 1},
		{"unconfident", 0.2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine([]detectors.Detector{empty}, classifyAs("bag", tt.confidence), Options{})
			resp := engine.DetectObjects(context.Background(), data)

			if len(resp.Detections) != tt.want {
				t.Fatalf("got %d detections, want %d", len(resp.Detections), tt.want)
			}
			if tt.want == 0 {
				return
			}
			d := resp.Detections[0]
			if d.BBox != (models.Box{0, 0, 120, 90}) {
				t.Errorf("fallback should cover the full image, got %v", d.BBox)
			}
			if d.Source != FallbackSource || d.Label != "bag" || d.SearchLabel != "bag" {
				t.Errorf("unexpected fallback detection %+v", d)
			}
		})
	}
}

func TestDetectObjects_NoFallbackWhenDetectorsFound(t *testing.T) {
	one := staticDetector{name: "one", detections: []models.Detection{det(0.4, models.Box{0, 0, 60, 60})}}
	resp := NewEngine([]detectors.Detector{one}, classifyAs("hat", 0.99), Options{}).
		DetectObjects(context.Background(), encodedImage(t, 100, 100))

	for _, d := range resp.Detections {
		if d.Source == FallbackSource {
			t.Errorf("fallback must only run when detectors find nothing")
		}
	}
}

func TestDetectObjects_Undecodable(t *testing.T) {
	engine := NewEngine(nil, classifyAs("dress", 1), Options{})

	for _, data := range [][]byte{nil, []byte("not an image")} {
		resp := engine.DetectObjects(context.Background(), data)
		if len(resp.Detections) != 0 || resp.ImageWidth != 0 || resp.ImageHeight != 0 {
			t.Errorf("expected empty response, got %+v", resp)
		}
		if resp.Detections == nil {
			t.Errorf("detections should encode as an empty list")
		}
	}
}

func TestDetectObjects_Degraded(t *testing.T) {
	data := encodedImage(t, 100, 100)
	empty := staticDetector{name: "empty", detections: []models.Detection{}}
	found := staticDetector{name: "found", detections: []models.Detection{det(0.8, models.Box{0, 0, 60, 60})}}
	down := erroringDetector{name: "down", err: inference.ErrUnavailable}
	unavailable := func(context.Context, image.Image) (classifier.Prediction, error) {
		return classifier.Prediction{}, inference.ErrUnavailable
	}

	tests := []struct {
		name      string
		registry  []detectors.Detector
		classify  classifier.ClassifyFunc
		degraded  bool
		wantCount int
	}{
		{"healthy and empty", []detectors.Detector{empty}, classifyAs("bag", 0.1), false, 0},
		{"detector down", []detectors.Detector{down}, classifyAs("bag", 0.9), true, 1},
		{"detector down beside a healthy one", []detectors.Detector{found, down}, classifyAs("bag", 0.9), true, 1},
		{"fallback classification down", []detectors.Detector{empty}, unavailable, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewEngine(tt.registry, tt.classify, Options{}).DetectObjects(context.Background(), data)
			if resp.Degraded != tt.degraded {
				t.Errorf("degraded: got %v, want %v", resp.Degraded, tt.degraded)
			}
			if len(resp.Detections) != tt.wantCount {
				t.Errorf("got %d detections, want %d", len(resp.Detections), tt.wantCount)
			}
		})
	}
}

func TestDetectObjects_DeadlineCancelsOtherDetectors(t *testing.T) {
	registry := []detectors.Detector{
		erroringDetector{name: "slow", block: true},
		erroringDetector{name: "expired", err: context.DeadlineExceeded},
	}
	engine := NewEngine(registry, nil, Options{})
	data := encodedImage(t, 50, 50)

	done := make(chan models.DetectResponse, 1)
	go func() { done <- engine.DetectObjects(context.Background(), data) }()

	select {
	case resp := <-done:
		if !resp.Degraded {
			t.Errorf("expected a degraded response")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked detector was not cancelled")
	}
}

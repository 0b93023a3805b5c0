package detectors

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/inference"
)

type fakeProposer struct {
	regions []inference.Region
	err     error
	model   string
}

func (f *fakeProposer) ProposeRegions(_ context.Context, model string, _ image.Image) ([]inference.Region, error) {
	f.model = model
	return f.regions, f.err
}

func labelBySize(_ context.Context, img image.Image) (classifier.Prediction, error) {
	if img.Bounds().Dx() > 100 {
		return classifier.Prediction{Label: "dress", Confidence: 0.9}, nil
	}
	return classifier.Prediction{Label: "bag", Confidence: 0.8}, nil
}

func testImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 400, 300))
}

func TestClothingDetector(t *testing.T) {
	proposer := &fakeProposer{regions: []inference.Region{
		{ClassID: 10, Score: 0.91234, Box: [4]float64{10, 10, 210, 290}},
		{ClassID: 8, Score: 0.29, Box: [4]float64{0, 0, 100, 100}},  // below floor
		{ClassID: 6, Score: 0.80, Box: [4]float64{0, 0, 30, 30}},    // 900 px²
		{ClassID: 99, Score: 0.40, Box: [4]float64{300, 100, 460, 200}}, // clamped, unknown class
	}}

	got := NewClothing(proposer).Detect(context.Background(), testImage(), labelBySize)

	if proposer.model != "deepfashion2" {
		t.Errorf("model: got %s", proposer.model)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(got), got)
	}

	first := got[0]
	if first.Label != "long sleeved dress" || first.SearchLabel != "dress" {
		t.Errorf("labels: got %s / %s", first.Label, first.SearchLabel)
	}
	if first.Score != 0.912 {
		t.Errorf("score should be rounded to 3 decimals, got %v", first.Score)
	}
	if first.Source != "deepfashion2" {
		t.Errorf("source: got %s", first.Source)
	}

	second := got[1]
	if second.BBox[2] != 400 {
		t.Errorf("box should be clamped to image width, got %v", second.BBox)
	}
	if second.Label != "clothing" {
		t.Errorf("unknown class should use fallback label, got %s", second.Label)
	}
}

func TestAccessoryDetector_AllowList(t *testing.T) {
	tests := []struct {
		name    string
		classID int
		score   float64
		want    int
	}{
		{"glasses", 13, 0.9, 1},
		{"umbrella", 26, 0.9, 1},
		{"cape is clothing", 12, 0.9, 0},
		{"hood is a part", 27, 0.9, 0},
		{"bag below floor", 24, 0.49, 0},
		{"bag at floor", 24, 0.50, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposer := &fakeProposer{regions: []inference.Region{
				{ClassID: tt.classID, Score: tt.score, Box: [4]float64{50, 50, 150, 150}},
			}}
			got := NewAccessory(proposer).Detect(context.Background(), testImage(), labelBySize)
			if len(got) != tt.want {
				t.Fatalf("got %d detections, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].Source != "yolos_fashionpedia" {
				t.Errorf("source: got %s", got[0].Source)
			}
		})
	}
}

func TestDetect_AbsorbsErrors(t *testing.T) {
	t.Run("proposer error", func(t *testing.T) {
		proposer := &fakeProposer{err: inference.ErrUnavailable}
		got := NewClothing(proposer).Detect(context.Background(), testImage(), labelBySize)
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})

	t.Run("classifier error", func(t *testing.T) {
		proposer := &fakeProposer{regions: []inference.Region{
			{ClassID: 1, Score: 0.9, Box: [4]float64{0, 0, 200, 200}},
		}}
		failing := func(context.Context, image.Image) (classifier.Prediction, error) {
			return classifier.Prediction{}, errors.New("boom")
		}
		got := NewClothing(proposer).Detect(context.Background(), testImage(), failing)
		if len(got) != 0 {
			t.Errorf("expected no detections, got %v", got)
		}
	})
}

func TestTryDetect_ReportsErrors(t *testing.T) {
	_, err := NewClothing(&fakeProposer{err: inference.ErrUnavailable}).
		TryDetect(context.Background(), testImage(), labelBySize)
	if !errors.Is(err, inference.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	empty, err := NewClothing(&fakeProposer{}).TryDetect(context.Background(), testImage(), labelBySize)
	if err != nil || len(empty) != 0 {
		t.Errorf("an empty image is not a failure: %v, %v", empty, err)
	}
}

func TestDetect_BoxesValid(t *testing.T) {
	proposer := &fakeProposer{regions: []inference.Region{
		{ClassID: 1, Score: 0.9, Box: [4]float64{-50, -50, 100, 100}},
		{ClassID: 1, Score: 0.9, Box: [4]float64{200, 200, 100, 100}},
		{ClassID: 1, Score: 0.9, Box: [4]float64{500, 10, 600, 200}},
	}}
	got := NewClothing(proposer).Detect(context.Background(), testImage(), nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	b := got[0].BBox
	if b[0] != 0 || b[1] != 0 || !b.Valid() || b.Area() < DefaultMinArea {
		t.Errorf("unexpected box %v", b)
	}
	if got[0].SearchLabel != got[0].Label {
		t.Errorf("without a classifier the search label should be the table label")
	}
}

func TestBuild(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dets, err := Build(&fakeProposer{}, DefaultSettings())
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if len(dets) != 2 || dets[0].Name() != "clothing" || dets[1].Name() != "accessory" {
			t.Errorf("unexpected registry order")
		}
	})

	t.Run("overrides", func(t *testing.T) {
		dets, err := Build(&fakeProposer{}, []Settings{{Kind: "accessory", Model: "custom", MinScore: 0.7}})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		table := dets[0].(*TableDetector).Table()
		if table.Model != "custom" || table.MinScore != 0.7 {
			t.Errorf("overrides not applied: %+v", table)
		}
	})

	errCases := []struct {
		name     string
		settings []Settings
	}{
		{"empty", nil},
		{"unknown kind", []Settings{{Kind: "shoes"}}},
		{"duplicate", []Settings{{Kind: "clothing"}, {Kind: "clothing"}}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(&fakeProposer{}, tt.settings); err == nil {
				t.Error("expected error")
			}
		})
	}
}

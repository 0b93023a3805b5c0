package classifier

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
)

// axisEmbedder maps label i to the i-th unit axis and images to a fixed vector.
type axisEmbedder struct {
	dim        int
	image      []float32
	textCalls  int
	imageCalls int
	err        error
}

func (e *axisEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.textCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dim)
		v[i] = 2 // deliberately not unit length
		out[i] = v
	}
	return out, nil
}

func (e *axisEmbedder) EmbedImage(_ context.Context, _ image.Image) ([]float32, error) {
	e.imageCalls++
	if e.err != nil {
		return nil, e.err
	}
	return e.image, nil
}

func TestClassify(t *testing.T) {
	labels := []string{"dress", "bag", "hat"}
	emb := &axisEmbedder{dim: 3, image: []float32{0.1, 0.9, 0.2}}

	c, err := New(context.Background(), emb, emb, labels, DefaultLogitScale)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pred, err := c.Classify(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if pred.Label != "bag" {
		t.Errorf("label: got %s, want bag", pred.Label)
	}
	if pred.Confidence <= 0.5 || pred.Confidence > 1 {
		t.Errorf("confidence out of range: %f", pred.Confidence)
	}
}

func TestClassify_LabelEmbeddingsComputedOnce(t *testing.T) {
	emb := &axisEmbedder{dim: 2, image: []float32{1, 0}}
	c, err := New(context.Background(), emb, emb, []string{"dress", "bag"}, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 5; i++ {
		if _, err := c.Classify(context.Background(), img); err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
	}
	if emb.textCalls != 1 {
		t.Errorf("text embeddings computed %d times, want 1", emb.textCalls)
	}
	if emb.imageCalls != 5 {
		t.Errorf("image embeddings: got %d calls, want 5", emb.imageCalls)
	}
}

func TestClassifyVector_EqualSimilarities(t *testing.T) {
	emb := &axisEmbedder{dim: 4}
	c, err := New(context.Background(), emb, emb, []string{"a", "b", "c", "d"}, DefaultLogitScale)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pred, err := c.ClassifyVector([]float32{0.5, 0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("ClassifyVector failed: %v", err)
	}
	if pred.Label != "a" {
		t.Errorf("ties should resolve to the first label, got %s", pred.Label)
	}
	if math.Abs(pred.Confidence-0.25) > 1e-9 {
		t.Errorf("confidence: got %f, want 0.25", pred.Confidence)
	}
}

func TestClassify_EmbedError(t *testing.T) {
	emb := &axisEmbedder{dim: 2, err: errors.New("boom")}
	c, err := New(context.Background(), emb, emb, []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.Classify(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1, 1))); err == nil {
		t.Error("Classify should surface embedder errors")
	}
}

// raggedEmbedder returns label embeddings of different widths
type raggedEmbedder struct{}

func (raggedEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 2+i)
		out[i][0] = 1
	}
	return out, nil
}

func (raggedEmbedder) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestNew_RejectsMixedLabelWidths(t *testing.T) {
	_, err := New(context.Background(), raggedEmbedder{}, raggedEmbedder{}, []string{"dress", "bag"}, 0)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestClassify_RejectsWidthMismatch(t *testing.T) {
	tests := []struct {
		name  string
		image []float32
	}{
		{"shorter than labels", []float32{1, 0}},
		{"longer than labels", []float32{1, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &axisEmbedder{dim: 3, image: tt.image}
			c, err := New(context.Background(), emb, emb, []string{"dress", "bag", "hat"}, 0)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if c.Dimension() != 3 {
				t.Fatalf("Dimension: got %d, want 3", c.Dimension())
			}

			if _, err := c.Classify(context.Background(), image.NewNRGBA(image.Rect(0, 0, 2, 2))); !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("Classify: expected ErrDimensionMismatch, got %v", err)
			}
			if _, err := c.ClassifyVector(tt.image); !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("ClassifyVector: expected ErrDimensionMismatch, got %v", err)
			}
		})
	}
}

func TestNew_NoLabels(t *testing.T) {
	emb := &axisEmbedder{dim: 2}
	if _, err := New(context.Background(), emb, emb, nil, 0); err == nil {
		t.Error("New should fail without labels")
	}
}

func TestContains(t *testing.T) {
	emb := &axisEmbedder{dim: len(DefaultLabels)}
	c, err := New(context.Background(), emb, emb, DefaultLabels, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !c.Contains("handbag") || c.Contains("umbrella") {
		t.Error("Contains does not match the vocabulary")
	}
}

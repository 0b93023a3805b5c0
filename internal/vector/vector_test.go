package vector

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if math.Abs(Norm(v)-1) > 1e-6 {
		t.Errorf("norm: got %f, want 1", Norm(v))
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("components: got %v, want [0.6 0.8]", v)
	}
}

func TestNormalize_Zero(t *testing.T) {
	_, err := Normalize([]float32{0, 0, 0})
	if !errors.Is(err, ErrZeroVector) {
		t.Errorf("expected ErrZeroVector, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"partial", []float32{1, 0, 0}, []float32{0.5, 0.5, 0}, 1 / math.Sqrt2},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{0.2, 0.3, 0.25}, 100)
	var sum float64
	for _, x := range p {
		sum += x
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %f", sum)
	}
	if ArgMax(p) != 1 {
		t.Errorf("argmax: got %d, want 1", ArgMax(p))
	}
	if p[1] < 0.99 {
		t.Errorf("scaled softmax should be peaked, got %f", p[1])
	}
}

func TestArgMax_Empty(t *testing.T) {
	if ArgMax(nil) != -1 {
		t.Error("ArgMax(nil) should be -1")
	}
}

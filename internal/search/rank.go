package search

import (
	"fmt"
	"slices"

	"github.com/locus-lens/locus/internal/vector"
)

// Ranked is a candidate position and its cosine similarity to the query
type Ranked struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rank scores every candidate against query by cosine similarity and returns
// them best first. Candidates must share the query's width.
func Rank(query []float32, candidates [][]float32) ([]Ranked, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		if len(c) != len(query) {
			return nil, fmt.Errorf("candidate %d has %d dimensions, expected %d", i, len(c), len(query))
		}
		ranked[i] = Ranked{Index: i, Score: vector.Cosine(query, c)}
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return ranked, nil
}

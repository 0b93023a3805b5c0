package index

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/locus-lens/locus/internal/models"
	"github.com/locus-lens/locus/internal/vector"
)

// Memory is an in-process Index. Records are kept in insertion order.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	created   bool
	records   []models.ItemRecord
	byID      map[string]int
}

// NewMemory returns an empty in-memory index of the given width
func NewMemory(dimension int) *Memory {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Memory{
		dimension: dimension,
		byID:      make(map[string]int),
	}
}

func (m *Memory) EnsureCollection(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return false, nil
	}
	m.created = true
	return true, nil
}

func (m *Memory) Exists(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.created, nil
}

// Upsert stores record, replacing any record with the same id.
func (m *Memory) Upsert(_ context.Context, record models.ItemRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if err := checkVector(record.Vector, m.dimension); err != nil {
		return err
	}

	record.Vector = slices.Clone(record.Vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	if i, ok := m.byID[record.ID]; ok {
		m.records[i] = record
		return nil
	}
	m.byID[record.ID] = len(m.records)
	m.records = append(m.records, record)
	return nil
}

func (m *Memory) Search(_ context.Context, vec []float32, category *string, limit int) ([]Hit, error) {
	if err := checkVector(vec, m.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.records))
	for _, r := range m.records {
		if category != nil && !matchesCategory(r, *category) {
			continue
		}
		hits = append(hits, Hit{Score: vector.Dot(vec, r.Vector), Record: r})
	}
	m.mu.RUnlock()

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) HasFilename(_ context.Context, filename string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.records)), nil
}

func (m *Memory) Close() error { return nil }

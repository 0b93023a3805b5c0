// Package storage caches detection results by image digest.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/locus-lens/locus/internal/models"
)

// DetectionStore caches detect responses keyed by image digest
type DetectionStore interface {
	// Get returns the cached response and whether it was found.
	Get(ctx context.Context, digest string) (*models.DetectResponse, bool, error)
	Set(ctx context.Context, digest string, resp *models.DetectResponse) error
	Close() error
}

// Digest returns the hex MD5 of data
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	resp    *models.DetectResponse
	expires time.Time
}

// DefaultMaxEntries bounds a MemoryStore
const DefaultMaxEntries = 10000

// MemoryStore is an in-process DetectionStore with per-entry expiry.
// Expired entries are swept from Set at most once per ttl, and the store
// never holds more than maxEntries; the oldest entry makes room.
type MemoryStore struct {
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	nextSweep  time.Time
	now        func() time.Time
	mu         sync.RWMutex
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, digest string) (*models.DetectResponse, bool, error) {
	s.mu.RLock()
	e, exists := s.entries[digest]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		s.mu.Lock()
		delete(s.entries, digest)
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.resp, true, nil
}

func (s *MemoryStore) Set(_ context.Context, digest string, resp *models.DetectResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.ttl > 0 && !now.Before(s.nextSweep) {
		s.sweep(now)
		s.nextSweep = now.Add(s.ttl)
	}
	if _, exists := s.entries[digest]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}

	s.entries[digest] = entry{resp: resp, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for digest, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, digest)
		}
	}
}

func (s *MemoryStore) evictOldest() {
	var oldest string
	var at time.Time
	for digest, e := range s.entries {
		if oldest == "" || e.expires.Before(at) {
			oldest, at = digest, e.expires
		}
	}
	delete(s.entries, oldest)
}

// Len returns the number of entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }

// NopStore never caches
type NopStore struct{}

func (NopStore) Get(context.Context, string) (*models.DetectResponse, bool, error) {
	return nil, false, nil
}

func (NopStore) Set(context.Context, string, *models.DetectResponse) error { return nil }

func (NopStore) Close() error { return nil }

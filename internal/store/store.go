package store

import (
	"math"
	"sync"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

// Store keeps the latest summary per session key. Writes overwrite
// (last writer wins). Get returns nil without an error for unknown keys.
//
// A single active writer per key is assumed; implementations do not
// coordinate concurrent writers of the same key.
type Store interface {
	Put(key string, summary emotion.Summary) error
	Get(key string) (*emotion.Summary, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]emotion.Summary
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]emotion.Summary)}
}

func (m *MemoryStore) Put(key string, summary emotion.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = sanitize(summary)
	return nil
}

func (m *MemoryStore) Get(key string) (*emotion.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := sanitize(summary)
	return &out, nil
}

// sanitize returns a deep copy of s with NaN and infinities replaced by zero.
func sanitize(s emotion.Summary) emotion.Summary {
	out := emotion.Summary{
		Averages:        make(map[string]float64, len(s.Averages)),
		DominantCounts:  make(map[string]int, len(s.DominantCounts)),
		AvgConfidence:   finite(s.AvgConfidence),
		AvgClarity:      finite(s.AvgClarity),
		TotalDetections: s.TotalDetections,
	}
	for label, v := range s.Averages {
		out.Averages[label] = finite(v)
	}
	for label, c := range s.DominantCounts {
		out.DominantCounts[label] = c
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

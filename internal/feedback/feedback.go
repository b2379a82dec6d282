package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

// ErrNotFound is returned by MergeEmotions for an unknown record.
var ErrNotFound = errors.New("feedback record not found")

// Record is the interview feedback document the emotion summary is attached to.
// It is created by another collaborator once the interview ends.
type Record struct {
	ID          string           `json:"id"`
	InterviewID string           `json:"interviewId"`
	UserID      string           `json:"userId,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Emotions    *emotion.Summary `json:"emotions,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Store finds feedback records and overwrites their emotion field.
type Store interface {
	// FindBySession returns nil without an error when no record exists yet.
	FindBySession(ctx context.Context, interviewID string) (*Record, error)
	MergeEmotions(ctx context.Context, recordID string, summary emotion.Summary) error
}

var now = time.Now

// MemoryStore is a process-local Store, mainly for tests and demos.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Create adds or replaces a record.
func (m *MemoryStore) Create(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = cloneRecord(&r)
}

func (m *MemoryStore) FindBySession(ctx context.Context, interviewID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var found *Record
	for _, r := range m.records {
		if r.InterviewID != interviewID {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	return cloneRecord(found), nil
}

func (m *MemoryStore) MergeEmotions(ctx context.Context, recordID string, summary emotion.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[recordID]
	if !ok {
		return ErrNotFound
	}
	s := cloneSummary(summary)
	r.Emotions = &s
	r.UpdatedAt = now()
	return nil
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Score != nil {
		score := *r.Score
		out.Score = &score
	}
	if r.Emotions != nil {
		s := cloneSummary(*r.Emotions)
		out.Emotions = &s
	}
	return &out
}

func cloneSummary(s emotion.Summary) emotion.Summary {
	out := s
	out.Averages = make(map[string]float64, len(s.Averages))
	for k, v := range s.Averages {
		out.Averages[k] = v
	}
	out.DominantCounts = make(map[string]int, len(s.DominantCounts))
	for k, v := range s.DominantCounts {
		out.DominantCounts[k] = v
	}
	return out
}

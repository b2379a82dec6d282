package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

type creator interface {
	Store
	create(t *testing.T, r Record)
}

type memoryBackend struct{ *MemoryStore }

func (m memoryBackend) create(_ *testing.T, r Record) { m.Create(r) }

type fileBackend struct{ *FileStore }

func (f fileBackend) create(t *testing.T, r Record) {
	t.Helper()
	if err := f.Create(r); err != nil {
		t.Fatalf("creating record: %v", err)
	}
}

func backends(t *testing.T) map[string]creator {
	t.Helper()

	file, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("creating file store: %v", err)
	}
	return map[string]creator{
		"memory": memoryBackend{NewMemory()},
		"file":   fileBackend{file},
	}
}

func summary(total int) emotion.Summary {
	return emotion.Summary{
		Averages:        map[string]float64{"happy": 40},
		DominantCounts:  map[string]int{"happy": total},
		AvgConfidence:   60,
		TotalDetections: total,
	}
}

func TestFindBySession(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			missing, err := s.FindBySession(ctx, "interview-1")
			if err != nil || missing != nil {
				t.Fatalf("expected no record, got %+v, %v", missing, err)
			}

			s.create(t, Record{ID: "fb-old", InterviewID: "interview-1", CreatedAt: base})
			s.create(t, Record{ID: "fb-new", InterviewID: "interview-1", CreatedAt: base.Add(time.Minute)})
			s.create(t, Record{ID: "fb-other", InterviewID: "interview-2", CreatedAt: base})

			found, err := s.FindBySession(ctx, "interview-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if found == nil || found.ID != "fb-new" {
				t.Fatalf("expected newest record, got %+v", found)
			}
		})
	}
}

func TestMergeEmotionsOverwrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.create(t, Record{ID: "fb-1", InterviewID: "interview-1", Emotions: &emotion.Summary{TotalDetections: 9}})

			if err := s.MergeEmotions(ctx, "fb-1", summary(3)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := s.MergeEmotions(ctx, "fb-1", summary(3)); err != nil {
				t.Fatalf("unexpected error on repeated merge: %v", err)
			}

			found, err := s.FindBySession(ctx, "interview-1")
			if err != nil || found == nil {
				t.Fatalf("expected record, got %+v, %v", found, err)
			}
			if found.Emotions == nil || found.Emotions.TotalDetections != 3 || found.Emotions.DominantCounts["happy"] != 3 {
				t.Fatalf("expected overwritten emotions, got %+v", found.Emotions)
			}
			if found.UpdatedAt.IsZero() {
				t.Fatal("expected updated timestamp")
			}
		})
	}
}

func TestMergeEmotionsUnknownRecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.MergeEmotions(context.Background(), "missing", summary(1))
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFileStoreSkipsForeignDocuments(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("writing broken document: %v", err)
	}
	if err := s.Create(Record{ID: "fb-1", InterviewID: "interview-1"}); err != nil {
		t.Fatalf("creating record: %v", err)
	}

	found, err := s.FindBySession(context.Background(), "interview-1")
	if err != nil || found == nil || found.ID != "fb-1" {
		t.Fatalf("expected record despite broken neighbour, got %+v, %v", found, err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemory()
	s.Create(Record{ID: "fb-1", InterviewID: "interview-1"})
	if err := s.MergeEmotions(context.Background(), "fb-1", summary(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := s.FindBySession(context.Background(), "interview-1")
	first.Emotions.DominantCounts["happy"] = 100

	second, _ := s.FindBySession(context.Background(), "interview-1")
	if second.Emotions.DominantCounts["happy"] != 2 {
		t.Fatalf("expected stored record to be unaffected, got %+v", second.Emotions)
	}
}

func TestFileStoreMergesRecordUnderForeignName(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	foreign := filepath.Join(dir, "written-by-feedback-form.json")
	doc := []byte(`{"id":"fb-7","interviewId":"interview-1","createdAt":"2024-05-01T10:00:00Z"}`)
	if err := os.WriteFile(foreign, doc, 0o644); err != nil {
		t.Fatalf("writing record document: %v", err)
	}

	ctx := context.Background()
	found, err := s.FindBySession(ctx, "interview-1")
	if err != nil || found == nil || found.ID != "fb-7" {
		t.Fatalf("expected record, got %+v, %v", found, err)
	}

	if err := s.MergeEmotions(ctx, found.ID, summary(4)); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	merged, err := s.read(foreign)
	if err != nil {
		t.Fatalf("reading merged document: %v", err)
	}
	if merged.Emotions == nil || merged.Emotions.TotalDetections != 4 {
		t.Fatalf("expected emotions merged in place, got %+v", merged.Emotions)
	}
	if _, err := os.Stat(filepath.Join(dir, "fb-7.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no second document for the record, got %v", err)
	}
}

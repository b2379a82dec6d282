package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

// FileStore keeps one JSON document per record in a directory. Records are
// written by the feedback collaborator; this store only rewrites the emotion field.
//
// Create names documents <id>.json, but any *.json document holding a record
// is honored: lookups and merges match on the record ID inside the document,
// and a merge rewrites the document where it was found.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("feedback directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating feedback directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Create writes a new record, replacing a record with the same ID.
func (f *FileStore) Create(r Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("feedback record id is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(&r, f.path(r.ID))
}

func (f *FileStore) FindBySession(ctx context.Context, interviewID string) (*Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list feedback records: %w", err)
	}

	var found *Record
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		r, err := f.read(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			// A half-written or foreign document must not hide the others.
			continue
		}
		if r.InterviewID != interviewID {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	return found, nil
}

func (f *FileStore) MergeEmotions(ctx context.Context, recordID string, summary emotion.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path, r, err := f.locate(ctx, recordID)
	if err != nil {
		return err
	}

	r.Emotions = &summary
	r.UpdatedAt = now()
	return f.write(r, path)
}

// locate finds the document of a record, trying <id>.json before scanning.
func (f *FileStore) locate(ctx context.Context, recordID string) (string, *Record, error) {
	path := f.path(recordID)
	r, err := f.read(path)
	if err == nil && r.ID == recordID {
		return path, r, nil
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return "", nil, fmt.Errorf("list feedback records: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		r, err := f.read(path)
		if err != nil || r.ID != recordID {
			continue
		}
		return path, r, nil
	}
	return "", nil, ErrNotFound
}

func (f *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode feedback record %s: %w", path, err)
	}
	return &r, nil
}

func (f *FileStore) write(r *Record, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feedback record %s: %w", r.ID, err)
	}

	tmp, err := os.CreateTemp(f.dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create temp file for record %s: %w", r.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write feedback record %s: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close feedback record %s: %w", r.ID, err)
	}
	return os.Rename(tmp.Name(), path)
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, filepath.Base(id)+".json")
}

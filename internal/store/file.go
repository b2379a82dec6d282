package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

// FileStore persists each summary as a JSON document in a directory.
type FileStore struct {
	dir string
}

// NewFile creates a file store rooted at dir, creating the directory if needed.
func NewFile(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes the summary to a temporary file and renames it over the previous one.
func (f *FileStore) Put(key string, summary emotion.Summary) error {
	data, err := json.MarshalIndent(sanitize(summary), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary for %s: %w", key, err)
	}

	path := f.path(key)
	tmp, err := os.CreateTemp(f.dir, ".summary-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write summary for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close summary file for %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace summary file %s: %w", path, err)
	}
	return nil
}

// Get reads the summary stored under key. A missing file is not an error.
func (f *FileStore) Get(key string) (*emotion.Summary, error) {
	path := f.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read summary file %s: %w", path, err)
	}

	var summary emotion.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode summary file %s: %w", path, err)
	}

	out := sanitize(summary)
	return &out, nil
}

func (f *FileStore) path(key string) string {
	name := strings.ReplaceAll(url.PathEscape(key), ":", "%3A")
	return filepath.Join(f.dir, name+".json")
}

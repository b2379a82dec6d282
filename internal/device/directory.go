package device

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirectoryProvider replays still frames from a directory in name order,
// wrapping around at the end. It stands in for a camera when frames are
// recorded elsewhere.
type DirectoryProvider struct {
	Path string
}

func (d DirectoryProvider) Acquire(ctx context.Context, c Constraints) (Source, error) {
	if _, err := c.Normalize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := strings.TrimSpace(d.Path)
	if dir == "" {
		return nil, fmt.Errorf("frames directory is not configured: %w", ErrNoFrames)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("opening frames directory %s: %w", dir, err)
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, filepath.Join(dir, e.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("frames directory %s: %w", dir, ErrNoFrames)
	}
	sort.Strings(frames)

	return &directorySource{frames: frames}, nil
}

type directorySource struct {
	mu     sync.Mutex
	frames []string
	next   int
	closed bool
}

func (d *directorySource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	path := d.frames[d.next]
	d.next = (d.next + 1) % len(d.frames)
	d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (d *directorySource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

const (
	FacingUser        = "user"
	FacingEnvironment = "environment"

	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrClosed is returned by Capture after the source has been released.
	ErrClosed = errors.New("capture device released")
	// ErrNoFrames is returned when a directory holds no decodable frames.
	ErrNoFrames = errors.New("no frames available")
)

// Constraints are the preferences used when acquiring a device. Width and
// Height are ideal values, not hard requirements.
type Constraints struct {
	Facing string
	Width  int
	Height int
}

// Normalize fills defaults and validates the facing mode.
func (c Constraints) Normalize() (Constraints, error) {
	c.Facing = strings.ToLower(strings.TrimSpace(c.Facing))
	switch c.Facing {
	case "":
		c.Facing = FacingUser
	case FacingUser, FacingEnvironment:
	default:
		return c, fmt.Errorf("unsupported facing mode %q", c.Facing)
	}

	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	return c, nil
}

// Provider acquires exclusive access to a capture device.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (Source, error)
}

// Source is an acquired device. Close releases it; further captures fail with ErrClosed.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

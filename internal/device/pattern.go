package device

import (
	"context"
	"image"
	"image/color"
	"sync"
)

var bars = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255}, // White
	{R: 255, G: 255, B: 0, A: 255},   // Yellow
	{R: 0, G: 255, B: 255, A: 255},   // Cyan
	{R: 0, G: 255, B: 0, A: 255},     // Green
	{R: 255, G: 0, B: 255, A: 255},   // Magenta
	{R: 255, G: 0, B: 0, A: 255},     // Red
	{R: 0, G: 0, B: 255, A: 255},     // Blue
	{R: 0, G: 0, B: 0, A: 255},       // Black
}

// PatternProvider yields synthetic colour-bar frames at the ideal resolution.
// It never fails to acquire and is meant for demos and dry runs.
type PatternProvider struct{}

func (PatternProvider) Acquire(_ context.Context, c Constraints) (Source, error) {
	c, err := c.Normalize()
	if err != nil {
		return nil, err
	}
	return &patternSource{width: c.Width, height: c.Height}, nil
}

type patternSource struct {
	mu     sync.Mutex
	width  int
	height int
	frame  int
	closed bool
}

func (p *patternSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	shift := p.frame
	p.frame++
	p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	barWidth := p.width / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}

	// Bars scroll one position per frame so consecutive frames differ.
	for y := range p.height {
		for x := range p.width {
			idx := (x/barWidth + shift) % len(bars)
			img.SetRGBA(x, y, bars[idx])
		}
	}
	return img, nil
}

func (p *patternSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

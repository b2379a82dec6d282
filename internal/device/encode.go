package device

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultQuality matches the quality the browser capture used for uploads.
const DefaultQuality = 60

// Encoder turns captured frames into JPEG stills no larger than Width x Height.
type Encoder struct {
	Width   int
	Height  int
	Quality int
}

// Encode scales img down to fit the encoder bounds, keeping its aspect ratio,
// and returns the JPEG bytes. Frames already inside the bounds are not resized.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode frame: empty image")
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(img, e.Width, e.Height), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return src
	}

	// Integer cross-multiplication picks the tighter bound without float rounding.
	nw, nh := maxW, h*maxW/w
	if w*maxH < h*maxW {
		nw, nh = w*maxH/h, maxH
	}
	nw = max(nw, 1)
	nh = max(nh, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

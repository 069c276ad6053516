// Package resize turns encoded source images into bounded JPEG variants.
// Everything here is pure: no I/O and no shared state, so one source can be
// resized to several sizes concurrently.
package resize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	// DefaultQuality matches the JPEG quality of the original thumbnail service.
	DefaultQuality = 95
	// ContentType and Ext describe every variant produced by this package.
	ContentType = "image/jpeg"
	Ext         = ".jpg"
	// MaxPixels caps the declared area of a source. Larger images are refused
	// before their pixels are allocated.
	MaxPixels = 89_478_485
)

var (
	// ErrDecode is returned for unsupported, truncated or zero-area sources.
	ErrDecode = errors.New("decode image")
	// ErrInvalidSize is returned for non-positive target dimensions.
	ErrInvalidSize = errors.New("invalid target size")
)

// Func resizes src to fit within width x height.
type Func func(src []byte, width, height int) ([]byte, error)

// Fit resizes with DefaultQuality.
func Fit(src []byte, width, height int) ([]byte, error) {
	return fit(src, width, height, DefaultQuality)
}

// WithQuality returns a Func encoding at the given JPEG quality (1-100).
func WithQuality(quality int) Func {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return func(src []byte, width, height int) ([]byte, error) {
		return fit(src, width, height, quality)
	}
}

// fit scales the longer side down to the box, keeps the aspect ratio, never
// upscales and never crops. Transparent pixels are flattened onto white.
func fit(src []byte, width, height, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-area image", ErrDecode)
	}

	fitted := imaging.Fit(img, width, height, imaging.Lanczos)
	b := fitted.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), fitted, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

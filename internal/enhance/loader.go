package enhance

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

const DefaultMaxSourcePixels = 50_000_000

// SourceImage is a decoded upload. It belongs to a single request.
type SourceImage struct {
	Image  image.Image
	Width  int
	Height int
}

type Loader struct {
	codec     Codec
	maxPixels int
}

func NewLoader(codec Codec, maxPixels int) Loader {
	if codec == nil {
		codec = newCodec()
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSourcePixels
	}
	return Loader{codec: codec, maxPixels: maxPixels}
}

// Load decodes data. Every failure is a *DecodeError.
func (l Loader) Load(data []byte) (SourceImage, error) {
	if len(data) == 0 {
		return SourceImage{}, &DecodeError{Err: errors.New("empty source")}
	}

	// Reject oversized headers before allocating pixels. Formats the std
	// registry cannot read are left to the codec.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if int64(cfg.Width)*int64(cfg.Height) > int64(l.maxPixels) {
			return SourceImage{}, &DecodeError{Err: fmt.Errorf("source %dx%d exceeds %d pixels", cfg.Width, cfg.Height, l.maxPixels)}
		}
	}

	img, err := l.codec.Decode(data)
	if err != nil {
		return SourceImage{}, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return SourceImage{}, &DecodeError{Err: fmt.Errorf("invalid dimensions %dx%d", w, h)}
	}
	if int64(w)*int64(h) > int64(l.maxPixels) {
		return SourceImage{}, &DecodeError{Err: fmt.Errorf("source %dx%d exceeds %d pixels", w, h, l.maxPixels)}
	}

	return SourceImage{Image: img, Width: w, Height: h}, nil
}

//go:build govips && cgo

package enhance

import (
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec decodes through libvips, which also reads HEIF and AVIF
// uploads. Encoding stays on the pure-Go path so both builds produce the same
// JPEG bytes for the same buffer.
type govipsCodec struct {
	stdlibCodec
}

func (govipsCodec) Decode(data []byte) (image.Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate: %w", err)
	}

	img, err := ref.ToImage(vips.NewDefaultPNGExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	return img, nil
}

package enhance

import (
	"encoding/base64"
	"errors"

	"github.com/gabriel-vasile/mimetype"
)

const (
	JPEGQuality  = 90
	MIMETypeJPEG = "image/jpeg"
)

// EnhancedImage is a finished, self-describing payload.
type EnhancedImage struct {
	Data     []byte
	MIMEType string
	// Quality is the encoder quality in 1..100, or zero for passthrough bytes.
	Quality int
	Width   int
	Height  int
}

func (img EnhancedImage) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Encode serializes buf as JPEG at JPEGQuality.
func Encode(codec Codec, buf *PixelBuffer) (EnhancedImage, error) {
	if !buf.valid() {
		return EnhancedImage{}, &EncodeError{Err: errors.New("invalid pixel buffer")}
	}
	data, err := codec.EncodeJPEG(buf.RGBA(), JPEGQuality)
	if err != nil {
		return EnhancedImage{}, &EncodeError{Err: err}
	}
	return EnhancedImage{
		Data:     data,
		MIMEType: MIMETypeJPEG,
		Quality:  JPEGQuality,
		Width:    buf.Width,
		Height:   buf.Height,
	}, nil
}

func passthroughImage(source []byte) EnhancedImage {
	return EnhancedImage{
		Data:     source,
		MIMEType: mimetype.Detect(source).String(),
	}
}

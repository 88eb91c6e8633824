package domain

import (
	"errors"
	"fmt"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// Format is the output use-case class. The zero value is the default class.
type Format int

const (
	FormatReels Format = iota
	FormatBlog
	FormatAd
)

const DefaultFormat = FormatReels

type OverlayStyle int

const (
	OverlayNone OverlayStyle = iota
	OverlayFlatWash
	OverlayTopGradient
)

func (s OverlayStyle) String() string {
	switch s {
	case OverlayFlatWash:
		return "flat_wash"
	case OverlayTopGradient:
		return "top_gradient"
	default:
		return "none"
	}
}

type FormatSpec struct {
	CanvasWidth  int
	CanvasHeight int
	Overlay      OverlayStyle
}

const CanvasWidth = 1080

var formatTable = map[Format]struct {
	slug string
	spec FormatSpec
}{
	FormatReels: {slug: "reels", spec: FormatSpec{CanvasWidth: CanvasWidth, CanvasHeight: 1920, Overlay: OverlayFlatWash}},
	FormatBlog:  {slug: "blog", spec: FormatSpec{CanvasWidth: CanvasWidth, CanvasHeight: 1350, Overlay: OverlayFlatWash}},
	FormatAd:    {slug: "ad", spec: FormatSpec{CanvasWidth: CanvasWidth, CanvasHeight: 1920, Overlay: OverlayTopGradient}},
}

func Formats() []Format {
	return []Format{FormatAd, FormatBlog, FormatReels}
}

// ParseFormat resolves a format key. Empty keys map to DefaultFormat silently;
// unknown keys map to DefaultFormat with ErrUnsupportedFormat.
func ParseFormat(key string) (Format, error) {
	norm := normalizeKey(key)
	if norm == "" {
		return DefaultFormat, nil
	}
	for f, entry := range formatTable {
		if entry.slug == norm {
			return f, nil
		}
	}
	return DefaultFormat, fmt.Errorf("%w: %q", ErrUnsupportedFormat, key)
}

func (f Format) Spec() FormatSpec {
	if entry, ok := formatTable[f]; ok {
		return entry.spec
	}
	return formatTable[DefaultFormat].spec
}

func (f Format) String() string {
	if entry, ok := formatTable[f]; ok {
		return entry.slug
	}
	return formatTable[DefaultFormat].slug
}

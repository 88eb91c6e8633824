package enhance

import (
	"context"
	"io"
	"log"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

// State is the stage an enhancement request finished in.
type State string

const (
	StateLoaded     State = "loaded"
	StateFitted     State = "fitted"
	StateGraded     State = "graded"
	StateComposited State = "composited"
	StateEncoded    State = "encoded"
	// StateGradedFallback means the composited buffer failed to encode and
	// the pre-overlay buffer was returned instead.
	StateGradedFallback State = "graded_fallback"
	StatePassthrough    State = "passthrough"
)

// Result is always displayable. Err carries the absorbed failure, if any.
type Result struct {
	Image     EnhancedImage
	State     State
	Category  domain.Category
	Format    domain.Format
	Placement Placement
	// Stages lists every state reached, in order.
	Stages []State
	Err    error
}

type Config struct {
	MaxSourcePixels int
}

type Enhancer struct {
	logger *log.Logger
	codec  Codec
	loader Loader
}

func NewEnhancer(logger *log.Logger, cfg Config) *Enhancer {
	return newEnhancer(logger, newCodec(), cfg)
}

func newEnhancer(logger *log.Logger, codec Codec, cfg Config) *Enhancer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Enhancer{
		logger: logger,
		codec:  codec,
		loader: NewLoader(codec, cfg.MaxSourcePixels),
	}
}

// Enhance resolves free-form keys at the boundary and runs the pipeline.
// Unknown keys are logged and fall back to the neutral profile and default
// format.
func (e *Enhancer) Enhance(source []byte, categoryKey, formatKey string) Result {
	category, err := domain.ParseCategory(categoryKey)
	if err != nil {
		e.logger.Printf("enhance category fallback key=%q err=%v", categoryKey, err)
	}
	format, err := domain.ParseFormat(formatKey)
	if err != nil {
		e.logger.Printf("enhance format fallback key=%q default=%s err=%v", formatKey, format, err)
	}
	return e.EnhanceWith(source, category, format)
}

// EnhanceWith runs Loaded → Fitted → Graded → Composited → Encoded. A decode
// failure short-circuits to passthrough of source.
func (e *Enhancer) EnhanceWith(source []byte, category domain.Category, format domain.Format) Result {
	result := Result{Category: category, Format: format}

	src, err := e.loader.Load(source)
	if err != nil {
		e.logger.Printf("enhance passthrough category=%s format=%s err=%v", category, format, err)
		result.Image = passthroughImage(source)
		result.advance(StatePassthrough)
		result.Err = err
		return result
	}
	result.advance(StateLoaded)

	spec := format.Spec()
	buf, placement := Rasterize(src, spec)
	result.Placement = placement
	result.advance(StateFitted)

	Grade(buf, category)
	graded := buf.Clone()
	result.advance(StateGraded)

	Composite(buf, spec.Overlay)
	result.advance(StateComposited)

	img, err := Encode(e.codec, buf)
	if err == nil {
		result.Image = img
		result.advance(StateEncoded)
		return result
	}
	result.Err = err

	img, fallbackErr := Encode(e.codec, graded)
	if fallbackErr == nil {
		e.logger.Printf("enhance graded fallback category=%s format=%s err=%v", category, format, err)
		result.Image = img
		result.advance(StateGradedFallback)
		return result
	}

	e.logger.Printf("enhance passthrough category=%s format=%s err=%v fallback_err=%v", category, format, err, fallbackErr)
	result.Image = passthroughImage(source)
	result.advance(StatePassthrough)
	return result
}

func (r *Result) advance(s State) {
	r.State = s
	r.Stages = append(r.Stages, s)
}

// Future is a pending enhancement started by Go.
type Future struct {
	done   chan struct{}
	result Result
}

// Go runs EnhanceWith on its own goroutine. The work always completes; Wait
// only bounds how long the caller is willing to block for it.
func (e *Enhancer) Go(source []byte, category domain.Category, format domain.Format) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result = e.EnhanceWith(source, category, format)
	}()
	return f
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelgrade/internal/domain"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Category   domain.Category
	Format     domain.Format
	Token      supersede.Token
}

type Output struct {
	Path     string        `json:"path"`
	MIMEType string        `json:"mime_type"`
	State    enhance.State `json:"state"`
	Bytes    int           `json:"bytes"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
}

type Result struct {
	SourceBytes int
	Output      Output
	Enhancement enhance.Result
	// Superseded is set when a newer request in the same session was issued
	// before this one could be emitted. Output is empty in that case.
	Superseded bool
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, img enhance.EnhancedImage, state enhance.State) (Output, error)
}

type Processor struct {
	fetcher  Fetcher
	enhancer *enhance.Enhancer
	emitter  Emitter
	tracker  supersede.Tracker
	tracer   trace.Tracer
}

func NewProcessor(fetcher Fetcher, emitter Emitter, enhancer *enhance.Enhancer, tracker supersede.Tracker) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	if enhancer == nil {
		return nil, errors.New("enhancer is required")
	}
	return &Processor{
		fetcher:  fetcher,
		enhancer: enhancer,
		emitter:  emitter,
		tracker:  tracker,
		tracer:   otel.Tracer("pixelgrade/pipeline"),
	}, nil
}

func NewLocalProcessor(outputDir string, enhancer *enhance.Enhancer, tracker supersede.Tracker) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, enhancer, tracker)
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter, enhancer *enhance.Enhancer, tracker supersede.Tracker) (*Processor, error) {
	return NewProcessor(fetcher, emitter, enhancer, tracker)
}

// Process fetches the source, enhances it and emits the result. A superseded
// request returns a Result with Superseded set and an error wrapping
// supersede.ErrSuperseded; nothing is emitted for it.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("enhance.category", req.Category.String()),
		attribute.String("enhance.format", req.Format.String()),
	)

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	enhanced := p.enhancer.EnhanceWith(sourceBytes, req.Category, req.Format)
	for _, stage := range enhanced.Stages {
		span.AddEvent(string(stage))
	}
	span.SetAttributes(attribute.String("enhance.state", string(enhanced.State)))

	out := Result{SourceBytes: len(sourceBytes), Enhancement: enhanced}
	err = supersede.Commit(ctx, p.tracker, req.Token, func() error {
		written, emitErr := p.emitter.Emit(ctx, req, enhanced.Image, enhanced.State)
		if emitErr != nil {
			return fmt.Errorf("emit stage: %w", emitErr)
		}
		out.Output = written
		return nil
	})
	if errors.Is(err, supersede.ErrSuperseded) {
		span.AddEvent("superseded")
		out.Superseded = true
		return out, fmt.Errorf("commit session=%s seq=%d: %w", req.Token.Session, req.Token.Seq, err)
	}
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, img enhance.EnhancedImage, state enhance.State) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFilename(img.MIMEType))
	if err := os.WriteFile(fullPath, img.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return newOutput(fullPath, img, state), nil
}

func newOutput(path string, img enhance.EnhancedImage, state enhance.State) Output {
	return Output{
		Path:     path,
		MIMEType: img.MIMEType,
		State:    state,
		Bytes:    len(img.Data),
		Width:    img.Width,
		Height:   img.Height,
	}
}

// outputFilename is enhanced.<ext>, with ext taken from the MIME type so
// passthrough bytes keep their original extension.
func outputFilename(mimeType string) string {
	ext := ".bin"
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return "enhanced" + ext
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

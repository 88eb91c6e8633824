package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/queue"
	"github.com/dunamismax/pixelgrade/internal/store"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderSessionID       = "X-Session-ID"
	HeaderSessionSequence = "X-Session-Sequence"
	HeaderEnhanceState    = "X-Enhance-State"
	HeaderEnhanceCategory = "X-Enhance-Category"
	HeaderEnhanceFormat   = "X-Enhance-Format"
)

type Server struct {
	logger                *log.Logger
	queueClient           QueueEnqueuer
	jobStore              store.JobStore
	storage               ObjectStorage
	enhancer              *enhance.Enhancer
	tracker               supersede.Tracker
	presignTTL            time.Duration
	maxBodyBytes          int64
	enhanceTimeout        time.Duration
	enhanceCost           int
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type QueueEnqueuer interface {
	EnqueueEnhanceImage(ctx context.Context, payload queue.EnhanceImagePayload) (*asynq.TaskInfo, error)
}

type ObjectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Options wires the server. Only JobStore and Enhancer are required; a nil
// Tracker disables supersession and a nil RateLimiter disables limiting.
type Options struct {
	QueueClient           QueueEnqueuer
	JobStore              store.JobStore
	Storage               ObjectStorage
	Enhancer              *enhance.Enhancer
	Tracker               supersede.Tracker
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	EnhanceCost           int
	PresignTTL            time.Duration
	MaxBodyBytes          int64
	EnhanceTimeout        time.Duration
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 25 << 20
	}
	if opts.EnhanceTimeout <= 0 {
		opts.EnhanceTimeout = 30 * time.Second
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if opts.QueueClient == nil {
		opts.QueueClient = unavailableQueue{}
	}
	if opts.Enhancer == nil {
		opts.Enhancer = enhance.NewEnhancer(logger, enhance.Config{})
	}
	if opts.RateLimitUserIDHeader == "" {
		opts.RateLimitUserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		queueClient:           opts.QueueClient,
		jobStore:              opts.JobStore,
		storage:               opts.Storage,
		enhancer:              opts.Enhancer,
		tracker:               opts.Tracker,
		presignTTL:            opts.PresignTTL,
		maxBodyBytes:          opts.MaxBodyBytes,
		enhanceTimeout:        opts.EnhanceTimeout,
		enhanceCost:           max(1, opts.EnhanceCost),
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelgrade/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

type unavailableQueue struct{}

func (unavailableQueue) EnqueueEnhanceImage(_ context.Context, _ queue.EnhanceImagePayload) (*asynq.TaskInfo, error) {
	return nil, errors.New("queue is unavailable")
}

// Handler returns the mux wrapped in metrics, tracing and rate limiting, in
// that order from the outside.
func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	s.mux.HandleFunc("POST /v1/enhance", s.handleEnhance)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelgrade/internal/config"
	"github.com/dunamismax/pixelgrade/internal/domain"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/pipeline"
	"github.com/dunamismax/pixelgrade/internal/queue"
	"github.com/dunamismax/pixelgrade/internal/storage"
	"github.com/dunamismax/pixelgrade/internal/store"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/dunamismax/pixelgrade/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Deps struct {
	Enhancer   *enhance.Enhancer
	Tracker    supersede.Tracker
	Storage    *storage.Client
	Webhook    *webhook.Client
	JobStore   store.JobStore
	UsageStore store.UsageStore
}

// NewServer builds the asynq consumer. Storage may be nil, in which case only
// local_file jobs can run.
func NewServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Enhancer == nil {
		return nil, fmt.Errorf("enhancer is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, deps.Enhancer, deps.Tracker)
	if err != nil {
		return nil, fmt.Errorf("initialize local processor: %w", err)
	}

	s := &Server{
		logger:         logger,
		sem:            make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor: localProcessor,
		jobStore:       deps.JobStore,
		usageStore:     deps.UsageStore,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("pixelgrade/worker"),
	}

	if deps.Storage != nil {
		s.objectProcessor, err = pipeline.NewObjectStoreProcessor(
			pipeline.ObjectStoreFetcher{Storage: deps.Storage},
			pipeline.ObjectStoreEmitter{Storage: deps.Storage, OutputPrefix: "outputs"},
			deps.Enhancer,
			deps.Tracker,
		)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
	}
	if deps.Webhook != nil {
		s.webhookClient = deps.Webhook
	}
	if s.usageStore == nil {
		if jobAndUsageStore, ok := deps.JobStore.(store.UsageStore); ok {
			s.usageStore = jobAndUsageStore
		}
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeEnhanceImage, s.handleEnhanceImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleEnhanceImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseEnhanceImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.enhance_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.String("enhance.category", payload.Category),
		attribute.String("enhance.format", payload.Format),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	category, err := domain.ParseCategory(payload.Category)
	if err != nil {
		s.logger.Printf("category fallback job_id=%s err=%v", payload.JobID, err)
	}
	format, err := domain.ParseFormat(payload.Format)
	if err != nil {
		s.logger.Printf("format fallback job_id=%s default=%s err=%v", payload.JobID, format, err)
	}

	s.logger.Printf(
		"Working... job_id=%s source_type=%s category=%s format=%s object_key=%s",
		payload.JobID,
		payload.SourceType,
		category,
		format,
		payload.ObjectKey,
	)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	proc := s.processorFor(payload.SourceType)
	if proc == nil {
		err := fmt.Errorf("%w: %s (object storage not configured)", pipeline.ErrUnsupportedSourceType, payload.SourceType)
		s.fail(ctx, span, payload, err)
		return fmt.Errorf("select processor: %v: %w", err, asynq.SkipRetry)
	}

	result, err := proc.Process(ctx, pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Category:   category,
		Format:     format,
		Token:      payload.Token,
	})
	if result.Superseded {
		outcome = domain.JobStatusSuperseded
		s.logger.Printf("Superseded job_id=%s session=%s seq=%d", payload.JobID, payload.Token.Session, payload.Token.Seq)
		s.metrics.supersededTotal.Inc()
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSuperseded)
		span.SetStatus(codes.Ok, "superseded")
		_ = s.dispatchWebhook(ctx, payload, webhook.EventJobSuperseded, map[string]any{
			"job_id":        payload.JobID,
			"status":        domain.JobStatusSuperseded,
			"session_id":    payload.Token.Session,
			"sequence":      payload.Token.Seq,
			"requested_at":  payload.RequestedAt,
			"superseded_at": time.Now().UTC(),
		})
		return nil
	}
	if err != nil {
		s.fail(ctx, span, payload, err)
		if errors.Is(err, pipeline.ErrUnsupportedSourceType) {
			return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	state := string(result.Output.State)
	s.metrics.enhancementsTotal.WithLabelValues(category.String(), format.String(), state).Inc()
	s.logger.Printf("Processed job_id=%s state=%s path=%s bytes=%d", payload.JobID, state, result.Output.Path, result.Output.Bytes)
	s.saveOutput(ctx, payload.JobID, result.Output)
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"category":     category.String(),
		"format":       format.String(),
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"output":       result.Output,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) processorFor(sourceType string) processor {
	if sourceType == domain.SourceTypeLocalFile {
		return s.localProcessor
	}
	return s.objectProcessor
}

func (s *Server) fail(ctx context.Context, span trace.Span, payload queue.EnhanceImagePayload, err error) {
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, "pipeline failed")
	_ = s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusFailed,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"failed_at":    time.Now().UTC(),
		"error":        err.Error(),
	})
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) saveOutput(ctx context.Context, jobID string, out pipeline.Output) {
	if s.jobStore == nil {
		return
	}
	_, err := s.jobStore.SaveOutput(ctx, jobID, domain.JobOutput{
		Path:     out.Path,
		MIMEType: out.MIMEType,
		State:    string(out.State),
		Bytes:    out.Bytes,
		Width:    out.Width,
		Height:   out.Height,
	})
	if err != nil {
		s.logger.Printf("job output save failed job_id=%s err=%v", jobID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.EnhanceImagePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.EnhanceImagePayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", payload.JobID, err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			userID = job.UserID
		}
	}

	pixelsProcessed := int64(result.Output.Width * result.Output.Height)
	bytesSaved := max(0, int64(result.SourceBytes-result.Output.Bytes))
	computeTimeMS := max(1, computeDuration.Milliseconds())

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           payload.JobID,
		Category:        result.Enhancement.Category.String(),
		Format:          result.Enhancement.Format.String(),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

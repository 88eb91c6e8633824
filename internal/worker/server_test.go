package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelgrade/internal/domain"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/pipeline"
	"github.com/dunamismax/pixelgrade/internal/queue"
	"github.com/dunamismax/pixelgrade/internal/store"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/dunamismax/pixelgrade/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestServer(t *testing.T, jobStore *store.MemoryJobStore, tracker supersede.Tracker) (*Server, *captureWebhook) {
	t.Helper()

	proc, err := pipeline.NewLocalProcessor(t.TempDir(), enhance.NewEnhancer(nil, enhance.Config{}), tracker)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}
	hooks := &captureWebhook{}
	return &Server{
		logger:         log.New(io.Discard, "", 0),
		sem:            make(chan struct{}, 1),
		localProcessor: proc,
		webhookClient:  hooks,
		jobStore:       jobStore,
		usageStore:     jobStore,
		metrics:        newMetrics(),
		tracer:         noopTracer(),
	}, hooks
}

func seedJob(t *testing.T, jobStore *store.MemoryJobStore, jobID, objectKey string) {
	t.Helper()
	now := time.Now().UTC()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         jobID,
		UserID:     "user-1",
		Status:     domain.JobStatusQueued,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(path, buildTestPNG(t, 120, 80), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func enhanceTask(t *testing.T, payload queue.EnhanceImagePayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewEnhanceImageTask(payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestHandleEnhanceImageStoresOutput(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	source := writeSource(t)
	seedJob(t, jobStore, "job-1", source)
	s, hooks := newTestServer(t, jobStore, nil)

	err := s.handleEnhanceImage(context.Background(), enhanceTask(t, queue.EnhanceImagePayload{
		JobID:      "job-1",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  source,
		WebhookURL: "https://example.test/hook",
		Category:   "food",
		Format:     "blog",
	}))
	if err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-1")
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", job.Status)
	}
	if job.Output == nil || job.Output.State != string(enhance.StateEncoded) || job.Output.Height != 1350 {
		t.Fatalf("unexpected output: %+v", job.Output)
	}
	if hooks.event != webhook.EventJobCompleted {
		t.Fatalf("expected job.completed webhook, got %q", hooks.event)
	}

	logs := jobStore.UsageLogs()
	if len(logs) != 1 {
		t.Fatalf("expected one usage log, got %d", len(logs))
	}
	if logs[0].Category != "food" || logs[0].Format != "blog" || logs[0].PixelsProcessed != 1080*1350 {
		t.Fatalf("unexpected usage log: %+v", logs[0])
	}
}

func TestHandleEnhanceImageSupersededIsNotRetried(t *testing.T) {
	ctx := context.Background()
	tracker := supersede.NewMemoryTracker()
	older, _ := supersede.NewToken(ctx, tracker, "session-1")
	if _, err := supersede.NewToken(ctx, tracker, "session-1"); err != nil {
		t.Fatalf("issue newer token: %v", err)
	}

	jobStore := store.NewMemoryJobStore()
	source := writeSource(t)
	seedJob(t, jobStore, "job-old", source)
	s, hooks := newTestServer(t, jobStore, tracker)

	err := s.handleEnhanceImage(ctx, enhanceTask(t, queue.EnhanceImagePayload{
		JobID:      "job-old",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  source,
		WebhookURL: "https://example.test/hook",
		Token:      older,
	}))
	if err != nil {
		t.Fatalf("expected superseded task to complete without error, got %v", err)
	}

	job, _, _ := jobStore.Get(ctx, "job-old")
	if job.Status != domain.JobStatusSuperseded {
		t.Fatalf("expected superseded, got %s", job.Status)
	}
	if job.Output != nil {
		t.Fatalf("expected no output for superseded job, got %+v", job.Output)
	}
	if hooks.event != webhook.EventJobSuperseded {
		t.Fatalf("expected job.superseded webhook, got %q", hooks.event)
	}
	if len(jobStore.UsageLogs()) != 0 {
		t.Fatal("expected no usage for superseded job")
	}
}

func TestHandleEnhanceImageWithoutObjectStorageSkipsRetry(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	seedJob(t, jobStore, "job-s3", "uploads/job-s3/source")
	s, hooks := newTestServer(t, jobStore, nil)

	err := s.handleEnhanceImage(context.Background(), enhanceTask(t, queue.EnhanceImagePayload{
		JobID:      "job-s3",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-s3/source",
		WebhookURL: "https://example.test/hook",
	}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-s3")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if hooks.event != webhook.EventJobFailed {
		t.Fatalf("expected job.failed webhook, got %q", hooks.event)
	}
}

func TestHandleEnhanceImageMalformedPayload(t *testing.T) {
	s, _ := newTestServer(t, store.NewMemoryJobStore(), nil)
	err := s.handleEnhanceImage(context.Background(), asynq.NewTask(queue.TypeEnhanceImage, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	seedJob(t, jobStore, "job-1", "input.png")

	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), queue.EnhanceImagePayload{JobID: "job-1"}, pipeline.Result{
		SourceBytes: 1_000,
		Output:      pipeline.Output{Width: 20, Height: 25, Bytes: 300},
		Enhancement: enhance.Result{Category: domain.CategoryEvent, Format: domain.FormatAd},
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.PixelsProcessed != 500 {
		t.Fatalf("expected pixels_processed=500, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.BytesSaved != 700 {
		t.Fatalf("expected bytes_saved=700, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
	if usageStore.log.Category != "event" || usageStore.log.Format != "ad" {
		t.Fatalf("expected event/ad, got %s/%s", usageStore.log.Category, usageStore.log.Format)
	}
}

func TestRecordUsageClampsNegativeBytesSaved(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), queue.EnhanceImagePayload{JobID: "job-2"}, pipeline.Result{
		SourceBytes: 100,
		Output:      pipeline.Output{Width: 5, Height: 5, Bytes: 200},
	}, 0)

	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %s", usageStore.log.UserID)
	}
	if usageStore.log.BytesSaved != 0 {
		t.Fatalf("expected bytes_saved=0, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

type captureWebhook struct {
	event   string
	payload any
}

func (w *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	w.event = event
	w.payload = payload
	return nil
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * 255) / w), G: uint8((y * 255) / h), B: 140, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func noopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("test")
}

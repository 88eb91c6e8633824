package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	created := time.Now().UTC().Add(-time.Minute)
	if err := s.Create(ctx, domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Category:   "food",
		Format:     "blog",
		SessionID:  "session-1",
		Sequence:   3,
		CreatedAt:  created,
		UpdatedAt:  created,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", job.Status)
	}
	if !job.UpdatedAt.After(created) {
		t.Fatal("expected updated_at to move forward")
	}

	job, err = s.SaveOutput(ctx, "job-1", domain.JobOutput{Path: "out/enhanced.jpg", MIMEType: "image/jpeg", State: "encoded", Bytes: 10})
	if err != nil {
		t.Fatalf("save output: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded || job.Output == nil || job.Output.Path != "out/enhanced.jpg" {
		t.Fatalf("unexpected job after save output: %+v", job)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Sequence != 3 || got.Category != "food" {
		t.Fatalf("expected stored fields to persist, got %+v", got)
	}
}

func TestMemoryJobStoreMissingJob(t *testing.T) {
	s := NewMemoryJobStore()
	if _, err := s.UpdateStatus(context.Background(), "missing", domain.JobStatusFailed); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, err := s.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("expected missing job, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryJobStoreUsageLogs(t *testing.T) {
	s := NewMemoryJobStore()
	if err := s.CreateUsageLog(context.Background(), domain.UsageLog{JobID: "job-1", PixelsProcessed: 42}); err != nil {
		t.Fatalf("create usage log: %v", err)
	}

	logs := s.UsageLogs()
	if len(logs) != 1 || logs[0].PixelsProcessed != 42 {
		t.Fatalf("unexpected usage logs: %+v", logs)
	}
	logs[0].JobID = "mutated"
	if s.UsageLogs()[0].JobID != "job-1" {
		t.Fatal("expected UsageLogs to return a copy")
	}
}

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)

func TestOpenMemoryAndUnknownBackends(t *testing.T) {
	s, err := Open(context.Background(), "memory", "")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if _, ok := s.(*MemoryJobStore); !ok {
		t.Fatalf("expected *MemoryJobStore, got %T", s)
	}
	if _, err := Open(context.Background(), "sqlite", ""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// SaveOutput records the enhanced image and marks the job succeeded.
	SaveOutput(ctx context.Context, id string, output domain.JobOutput) (domain.Job, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

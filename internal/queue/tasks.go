package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/hibiken/asynq"
)

const TypeEnhanceImage = "image:enhance"

// EnhanceImagePayload carries the raw category and format keys so the worker
// applies the same fallback rules as the synchronous endpoint.
type EnhanceImagePayload struct {
	JobID       string          `json:"job_id"`
	SourceType  string          `json:"source_type"`
	WebhookURL  string          `json:"webhook_url,omitempty"`
	ObjectKey   string          `json:"object_key"`
	Category    string          `json:"category,omitempty"`
	Format      string          `json:"format,omitempty"`
	Token       supersede.Token `json:"token,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
}

func NewEnhanceImageTask(payload EnhanceImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal enhance payload: %w", err)
	}
	return asynq.NewTask(TypeEnhanceImage, body), nil
}

func ParseEnhanceImagePayload(task *asynq.Task) (EnhanceImagePayload, error) {
	var payload EnhanceImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EnhanceImagePayload{}, fmt.Errorf("unmarshal enhance payload: %w", err)
	}
	return payload, nil
}

package core

import (
	"context"
	"time"
)

// JobStartedEvent is published by the trigger handler once a pending job
// row exists; the coordinator consumes it and claims the job with its
// pending->running CAS.
type JobStartedEvent struct {
	JobID        int64      `json:"job_id"`
	AutomationID int64      `json:"automation_id"`
	UserID       int64      `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	FromDate     string     `json:"from_date,omitempty"`
	MaxResults   int        `json:"max_results,omitempty"`
}

// JobCompletedEvent is published when a job reaches the completed state.
type JobCompletedEvent struct {
	JobID        int64     `json:"job_id"`
	AutomationID int64     `json:"automation_id"`
	UserID       int64     `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at"`
	Stats        JobStats  `json:"stats"`
}

// JobFailedEvent is published when a job reaches the failed state.
type JobFailedEvent struct {
	JobID        int64          `json:"job_id"`
	AutomationID int64          `json:"automation_id"`
	UserID       int64          `json:"user_id"`
	FailedAt     time.Time      `json:"failed_at"`
	ErrorMessage string         `json:"error_message"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}

// EventBus is the narrow publishing surface the Coordinator depends on.
// It is deliberately library-agnostic: the concrete transport (durable,
// at-least-once, ack/nak) lives in internal/bus.
type EventBus interface {
	PublishJobStarted(ctx context.Context, evt JobStartedEvent) error
	PublishJobCompleted(ctx context.Context, evt JobCompletedEvent) error
	PublishJobFailed(ctx context.Context, evt JobFailedEvent) error
}

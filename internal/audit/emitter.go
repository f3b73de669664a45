// Package audit adapts job lifecycle events into go-users activity
// records, giving operators a tenant-scoped timeline independent of the
// append-only audit_log table the store already writes.
package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-users/activity"
	"github.com/goliatone/go-users/pkg/types"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Config configures the activity emitter.
type Config struct {
	Sink       types.ActivitySink
	Channel    string
	ObjectType string
}

// Emitter turns job lifecycle events into activity.Record rows.
type Emitter struct {
	sink       types.ActivitySink
	channel    string
	objectType string
}

// NewEmitter creates an Emitter. Channel defaults to "automation" and
// ObjectType to "job" when left blank.
func NewEmitter(cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "automation"
	}
	objectType := strings.TrimSpace(cfg.ObjectType)
	if objectType == "" {
		objectType = "job"
	}
	return &Emitter{sink: cfg.Sink, channel: channel, objectType: objectType}
}

// EmitJobStarted records a job.started activity.
func (e *Emitter) EmitJobStarted(ctx context.Context, evt core.JobStartedEvent) error {
	return e.emit(ctx, evt.UserID, "job.started", jobID(evt.JobID), map[string]any{
		"automation_id": evt.AutomationID,
		"from_date":     evt.FromDate,
	}, evt.StartedAt)
}

// EmitJobCompleted records a job.completed activity.
func (e *Emitter) EmitJobCompleted(ctx context.Context, evt core.JobCompletedEvent) error {
	return e.emit(ctx, evt.UserID, "job.completed", jobID(evt.JobID), map[string]any{
		"automation_id":      evt.AutomationID,
		"invoices_extracted": evt.Stats.InvoicesExtracted,
		"exports_completed":  evt.Stats.ExportsCompleted,
		"exports_failed":     evt.Stats.ExportsFailed,
	}, evt.CompletedAt)
}

// EmitJobFailed records a job.failed activity.
func (e *Emitter) EmitJobFailed(ctx context.Context, evt core.JobFailedEvent) error {
	meta := map[string]any{
		"automation_id": evt.AutomationID,
		"error_message": evt.ErrorMessage,
	}
	for k, v := range evt.ErrorDetails {
		meta[k] = v
	}
	return e.emit(ctx, evt.UserID, "job.failed", jobID(evt.JobID), meta, evt.FailedAt)
}

func (e *Emitter) emit(ctx context.Context, userID int64, verb, objectID string, meta map[string]any, occurredAt time.Time) error {
	if e == nil {
		return core.NewError(core.KindInternal, "activity emitter is nil", nil)
	}
	if e.sink == nil {
		return core.NewError(core.KindInternal, "activity sink not configured", nil)
	}
	record, err := activity.BuildRecordFromUUID(
		userUUID(userID), verb, e.objectType, objectID, meta,
		activity.WithChannel(e.channel),
		activity.WithOccurredAt(occurredAt),
	)
	if err != nil {
		return core.NewError(core.KindInternal, "build activity record", err)
	}
	if err := e.sink.Log(ctx, record); err != nil {
		return core.NewError(core.KindInternal, "log activity record", err)
	}
	return nil
}

func jobID(id int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("job:"+strconv.FormatInt(id, 10))).String()
}

// userUUID derives a stable UUID from an integer user ID: the store's
// tenancy keys are int64, while go-users activity records are keyed by
// uuid.UUID.
func userUUID(id int64) uuid.UUID {
	if id == 0 {
		return uuid.Nil
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("user:"+strconv.FormatInt(id, 10)))
}

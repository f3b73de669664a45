package command

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// idempotencyTTL bounds how long a trigger signature prevents a repeat
// run; long enough to absorb client retries, short enough that a
// deliberate re-trigger of the same automation later the same day isn't
// permanently blocked.
const idempotencyTTL = 10 * time.Minute

type idempotencyPayload struct {
	AutomationID int64
	FromDate     string
	MaxResults   int
	Key          string
}

// buildTriggerSignature canonicalizes the fields that define "the same
// trigger request" and hashes them, so a retried call with an identical
// body always produces the same signature regardless of map/field
// ordering.
func buildTriggerSignature(msg TriggerAutomation) (string, error) {
	encoded, err := json.Marshal(idempotencyPayload{
		AutomationID: msg.AutomationID,
		FromDate:     msg.FromDate,
		MaxResults:   msg.MaxResults,
		Key:          msg.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("trigger:%x", sum[:]), nil
}

// TriggerAutomationHandler creates a pending Job for an automation and
// publishes the job.started event the Coordinator consumes.
type TriggerAutomationHandler struct {
	Store core.Store
	Bus   core.EventBus
	Now   func() time.Time
}

// NewTriggerAutomationHandler creates a TriggerAutomationHandler.
func NewTriggerAutomationHandler(store core.Store, bus core.EventBus) *TriggerAutomationHandler {
	return &TriggerAutomationHandler{Store: store, Bus: bus, Now: time.Now}
}

func (h *TriggerAutomationHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Execute runs the trigger: it inserts the Job row first so a bus outage
// never loses the intent to run, then publishes job.started. The
// Coordinator's ClaimJob CAS makes redelivery of that event idempotent.
func (h *TriggerAutomationHandler) Execute(ctx context.Context, msg TriggerAutomation) error {
	if h == nil || h.Store == nil || h.Bus == nil {
		return core.NewError(core.KindInternal, "trigger handler is not configured", nil)
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	var fromDate *time.Time
	if msg.FromDate != "" {
		parsed, err := time.Parse("2006-01-02", msg.FromDate)
		if err != nil {
			return core.NewError(core.KindValidation, "invalid from_date", err)
		}
		fromDate = &parsed
	}

	var signature string
	if msg.IdempotencyKey != "" {
		sig, err := buildTriggerSignature(msg)
		if err != nil {
			return core.NewError(core.KindInternal, "build idempotency signature failed", err)
		}
		signature = sig

		if _, found, err := h.Store.CheckIdempotency(ctx, signature); err != nil {
			return core.NewError(core.KindInternal, "check idempotency failed", err)
		} else if found {
			// A prior call already created the job and published
			// job.started; this retry is a no-op by design.
			return nil
		}
	}

	job, err := h.Store.CreateJob(ctx, msg.AutomationID, fromDate, msg.MaxResults)
	if err != nil {
		return core.NewError(core.KindInternal, "create job failed", err)
	}

	if signature != "" {
		if err := h.Store.StoreIdempotency(ctx, signature, job.ID, idempotencyTTL); err != nil {
			return core.NewError(core.KindInternal, "store idempotency record failed", err)
		}
	}

	return h.Bus.PublishJobStarted(ctx, core.JobStartedEvent{
		JobID:        job.ID,
		AutomationID: msg.AutomationID,
		UserID:       msg.UserID,
		StartedAt:    h.now(),
		FromDate:     msg.FromDate,
		MaxResults:   msg.MaxResults,
	})
}

// CancelJobHandler requests cancellation of a running or pending job.
type CancelJobHandler struct {
	Store core.Store
}

// NewCancelJobHandler creates a CancelJobHandler.
func NewCancelJobHandler(store core.Store) *CancelJobHandler {
	return &CancelJobHandler{Store: store}
}

func (h *CancelJobHandler) Execute(ctx context.Context, msg CancelJob) error {
	if h == nil || h.Store == nil {
		return core.NewError(core.KindInternal, "cancel handler is not configured", nil)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	ok, err := h.Store.RequestCancellation(ctx, msg.JobID)
	if err != nil {
		return core.NewError(core.KindInternal, "request cancellation failed", err)
	}
	if !ok {
		return core.NewError(core.KindConflict, "job is not pending or running", nil)
	}
	return nil
}

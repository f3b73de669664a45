package bus

import (
	"context"
	"encoding/json"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// EventPublisher adapts a Bus to core.EventBus by JSON-encoding the
// three job lifecycle payloads and publishing them on the jobs stream,
// matching the payload shapes named in the message-bus contract.
type EventPublisher struct {
	Bus Bus
}

// NewEventPublisher wraps a Bus as a core.EventBus.
func NewEventPublisher(b Bus) *EventPublisher {
	return &EventPublisher{Bus: b}
}

var _ core.EventBus = (*EventPublisher)(nil)

func (p *EventPublisher) PublishJobStarted(ctx context.Context, evt core.JobStartedEvent) error {
	return p.publish(ctx, SubjectJobStarted, evt)
}

func (p *EventPublisher) PublishJobCompleted(ctx context.Context, evt core.JobCompletedEvent) error {
	return p.publish(ctx, SubjectJobCompleted, evt)
}

func (p *EventPublisher) PublishJobFailed(ctx context.Context, evt core.JobFailedEvent) error {
	return p.publish(ctx, SubjectJobFailed, evt)
}

func (p *EventPublisher) publish(ctx context.Context, subject string, evt any) error {
	if p == nil || p.Bus == nil {
		return core.NewError(core.KindInternal, "event bus is not configured", nil)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return core.NewError(core.KindValidation, "event payload is not serializable", err)
	}
	return p.Bus.Publish(ctx, subject, payload)
}

// DecodeJobStarted decodes a job.started payload.
func DecodeJobStarted(payload []byte) (core.JobStartedEvent, error) {
	var evt core.JobStartedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return core.JobStartedEvent{}, core.NewError(core.KindValidation, "job.started payload invalid", err)
	}
	return evt, nil
}

package audit

import (
	"context"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// EventBus wraps a core.EventBus so every job lifecycle publish also
// lands on the activity timeline. The durable bus publish is the
// source of truth the Coordinator's contract depends on; a failed
// activity emission is logged and swallowed rather than turned into a
// job failure, since the timeline is an operator convenience, not a
// pipeline invariant.
type EventBus struct {
	Inner   core.EventBus
	Emitter *Emitter
	Logger  core.Logger
}

// NewEventBus wraps inner with activity emission via emitter.
func NewEventBus(inner core.EventBus, emitter *Emitter) *EventBus {
	return &EventBus{Inner: inner, Emitter: emitter}
}

var _ core.EventBus = (*EventBus)(nil)

func (b *EventBus) logger() core.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return core.NopLogger{}
}

func (b *EventBus) PublishJobStarted(ctx context.Context, evt core.JobStartedEvent) error {
	if err := b.Inner.PublishJobStarted(ctx, evt); err != nil {
		return err
	}
	if err := b.Emitter.EmitJobStarted(ctx, evt); err != nil {
		b.logger().Errorf("emit job.started activity failed: %v", err)
	}
	return nil
}

func (b *EventBus) PublishJobCompleted(ctx context.Context, evt core.JobCompletedEvent) error {
	if err := b.Inner.PublishJobCompleted(ctx, evt); err != nil {
		return err
	}
	if err := b.Emitter.EmitJobCompleted(ctx, evt); err != nil {
		b.logger().Errorf("emit job.completed activity failed: %v", err)
	}
	return nil
}

func (b *EventBus) PublishJobFailed(ctx context.Context, evt core.JobFailedEvent) error {
	if err := b.Inner.PublishJobFailed(ctx, evt); err != nil {
		return err
	}
	if err := b.Emitter.EmitJobFailed(ctx, evt); err != nil {
		b.logger().Errorf("emit job.failed activity failed: %v", err)
	}
	return nil
}

// Package bus provides a thin, library-agnostic durable pub/sub
// interface: publish, durable-subscribe, ensure-stream, ensure-consumer.
// The interface is intentionally narrow so that the coordinator and its
// callers never see the concrete transport.
//
// No repo in the retrieval pack imports a NATS/JetStream client, so this
// wrapper rides github.com/goliatone/go-job's existing durable, retryable
// ExecutionMessage dispatch primitive instead (see jobexec). An in-memory
// implementation (membus) backs unit tests.
package bus

import (
	"context"
	"time"
)

// Outcome is the per-message handler verdict: Ack (processed) or Nak
// (requeue). jobexec treats a returned error or a handler panic like a Nak
// and redelivers up to its RetryPolicy's bound; membus never redelivers.
type Outcome int

const (
	Ack Outcome = iota
	Nak
)

// Handler processes one durably-delivered message and returns its outcome.
type Handler func(ctx context.Context, subject string, payload []byte) (Outcome, error)

// Bus is the core's dependency surface onto the message transport.
type Bus interface {
	// EnsureStream declares a stream backing the given subjects with a
	// size/age-bounded retention policy (not delivery-bounded).
	EnsureStream(ctx context.Context, name string, subjects []string, retention time.Duration) error

	// EnsureConsumer declares a named durable consumer on a stream,
	// filtered to one subject.
	EnsureConsumer(ctx context.Context, stream, consumer, filterSubject string) error

	// Publish JSON-encodes payload and hands it to the stream matching
	// subject.
	Publish(ctx context.Context, subject string, payload []byte) error

	// SubscribeDurable registers handler against a named durable
	// consumer. Each delivery attempt invokes handler once; different
	// messages are not serialized and may be handled concurrently, so
	// callers needing per-job exclusivity (the coordinator) get it from
	// their own store-level CAS.
	SubscribeDurable(ctx context.Context, stream, consumer string, subjects []string, handler Handler) error
}

// StreamJobs is the stream carrying job.{started,completed,failed}.
const StreamJobs = "jobs"

// DefaultJobsRetention is the default size/age retention for the jobs
// stream (24 hours, per the message-bus wrapper's contract).
const DefaultJobsRetention = 24 * time.Hour

const (
	SubjectJobStarted   = "job.started"
	SubjectJobCompleted = "job.completed"
	SubjectJobFailed    = "job.failed"
)

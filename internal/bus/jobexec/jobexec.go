// Package jobexec is the durable bus.Bus implementation. It carries every
// published subject through github.com/goliatone/go-job's ExecutionMessage
// dispatch so that job lifecycle events get the same at-least-once,
// retryable, idempotency-keyed delivery as export generation jobs do.
package jobexec

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	job "github.com/goliatone/go-job"

	"github.com/fakturenn/invoicebridge/internal/bus"
	"github.com/fakturenn/invoicebridge/internal/core"
)

const (
	// DefaultTaskID names the single go-job task every bus subject rides.
	// Subjects are carried inside the message payload rather than as
	// distinct task identities, since a bus subject is an application
	// concept the transport itself never inspects.
	DefaultTaskID   = "bus:dispatch"
	DefaultTaskPath = "bus:dispatch"
)

// Dispatcher hands an execution message to the go-job runtime. In
// production this is the coordinator's dispatcher.Dispatch wiring; tests
// supply a DispatcherFunc that calls Bus.Deliver directly to simulate the
// runtime invoking the registered task.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *job.ExecutionMessage) error
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(ctx context.Context, msg *job.ExecutionMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg *job.ExecutionMessage) error {
	if f == nil {
		return core.NewError(core.KindInternal, "dispatcher is nil", nil)
	}
	return f(ctx, msg)
}

// envelope carries the bus subject and payload inside one ExecutionMessage,
// since go-job dispatches by task identity, not subject.
type envelope struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type subscription struct {
	stream   string
	consumer string
	subjects map[string]bool
	handler  bus.Handler
}

// Config configures a Bus.
type Config struct {
	Dispatcher      Dispatcher
	TaskID          string
	TaskPath        string
	ExecutionConfig job.Config
	RetryPolicy     RetryPolicy
}

// Bus is a durable bus.Bus backed by go-job.
type Bus struct {
	mu       sync.RWMutex
	dispatch Dispatcher
	taskID   string
	taskPath string
	execCfg  job.Config
	retry    RetryPolicy
	streams  map[string][]string
	subs     []*subscription
}

// New creates a Bus. Dispatcher may be nil at construction time and set
// later via SetDispatcher once the go-job runtime is wired — Publish fails
// with KindInternal until one is configured.
func New(cfg Config) *Bus {
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = DefaultTaskID
	}
	taskPath := cfg.TaskPath
	if taskPath == "" {
		taskPath = DefaultTaskPath
	}
	retry := cfg.RetryPolicy
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
		retry.Backoff = job.BackoffConfig{
			Strategy:    job.BackoffExponential,
			Interval:    500 * time.Millisecond,
			MaxInterval: 30 * time.Second,
			Jitter:      true,
		}
	}
	return &Bus{
		dispatch: cfg.Dispatcher,
		taskID:   taskID,
		taskPath: taskPath,
		execCfg:  cfg.ExecutionConfig,
		retry:    retry,
		streams:  make(map[string][]string),
	}
}

var _ bus.Bus = (*Bus)(nil)

// SetDispatcher wires the go-job dispatcher once the runtime is available.
func (b *Bus) SetDispatcher(d Dispatcher) {
	b.mu.Lock()
	b.dispatch = d
	b.mu.Unlock()
}

func (b *Bus) EnsureStream(ctx context.Context, name string, subjects []string, retention time.Duration) error {
	b.mu.Lock()
	b.streams[name] = subjects
	b.mu.Unlock()
	return nil
}

// EnsureConsumer is a no-op: go-job has no first-class consumer-group
// concept, only task identity plus SubscribeDurable's in-process subject
// filter. The durable-redelivery guarantee comes entirely from go-job's own
// ExecutionMessage retry machinery, which Deliver drives.
func (b *Bus) EnsureConsumer(ctx context.Context, stream, consumer, filterSubject string) error {
	return nil
}

// Publish wraps payload in an envelope and dispatches it as a go-job
// ExecutionMessage under the bus's single task identity.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	dispatch := b.dispatch
	taskID, taskPath, execCfg := b.taskID, b.taskPath, b.execCfg
	b.mu.RUnlock()

	if dispatch == nil {
		return core.NewError(core.KindInternal, "job dispatcher is not configured", nil)
	}

	env := envelope{Subject: subject, Data: json.RawMessage(payload)}
	encoded, err := json.Marshal(env)
	if err != nil {
		return core.NewError(core.KindValidation, "bus payload is not serializable", err)
	}

	msg := &job.ExecutionMessage{
		JobID:      taskID,
		ScriptPath: taskPath,
		Config:     execCfg,
		Parameters: map[string]any{"payload": json.RawMessage(encoded)},
	}

	return dispatch.Dispatch(ctx, msg)
}

// SubscribeDurable registers handler against every subject in subjects.
// Deliver invokes every registered handler whose subject set matches an
// incoming message, in registration order.
func (b *Bus) SubscribeDurable(ctx context.Context, stream, consumer string, subjects []string, handler bus.Handler) error {
	if handler == nil {
		return core.NewError(core.KindValidation, "handler is required", nil)
	}
	set := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		set[s] = true
	}
	b.mu.Lock()
	b.subs = append(b.subs, &subscription{stream: stream, consumer: consumer, subjects: set, handler: handler})
	b.mu.Unlock()
	return nil
}

// Deliver is the go-job task entrypoint. The runtime calls it (directly, or
// through a Task wrapper registered under DefaultTaskID) once per delivery
// attempt; Deliver retries the matching handler on Nak or retryable error
// using the configured RetryPolicy before giving up and returning the error
// to go-job, which then applies its own redelivery/dead-letter policy.
func (b *Bus) Deliver(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return core.NewError(core.KindValidation, "execution message is required", nil)
	}

	env, err := decodeEnvelope(msg)
	if err != nil {
		return err
	}

	b.mu.RLock()
	matches := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.subjects[env.Subject] {
			matches = append(matches, sub)
		}
	}
	retry := b.retry
	b.mu.RUnlock()

	if len(matches) == 0 {
		return core.NewError(core.KindNotFound, "no durable subscriber for subject "+env.Subject, nil)
	}

	for _, sub := range matches {
		if err := b.deliverOne(ctx, sub, env, retry); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) deliverOne(ctx context.Context, sub *subscription, env envelope, retry RetryPolicy) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := func() (o bus.Outcome, herr error) {
			defer func() {
				if r := recover(); r != nil {
					o, herr = bus.Nak, core.NewError(core.KindInternal, "handler panicked for subject "+env.Subject, nil)
				}
			}()
			return sub.handler(ctx, env.Subject, env.Data)
		}()
		if err == nil && outcome == bus.Ack {
			return nil
		}
		if err == nil {
			err = core.NewError(core.KindInternal, "handler returned Nak for subject "+env.Subject, nil)
		}

		if !retry.shouldRetry(err, attempt) {
			return err
		}

		attempt++
		if serr := waitOrCancel(ctx, retry.nextDelay(attempt)); serr != nil {
			return serr
		}
	}
}

func decodeEnvelope(msg *job.ExecutionMessage) (envelope, error) {
	if msg.Parameters == nil {
		return envelope{}, core.NewError(core.KindValidation, "bus message has no payload", nil)
	}
	raw, ok := msg.Parameters["payload"]
	if !ok {
		return envelope{}, core.NewError(core.KindValidation, "bus message payload missing", nil)
	}

	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return envelope{}, core.NewError(core.KindValidation, "bus message payload invalid", err)
		}
		data = encoded
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, core.NewError(core.KindValidation, "bus message payload invalid", err)
	}
	return env, nil
}

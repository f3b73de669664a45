// Package membus is an in-memory bus.Bus used by unit tests. It
// delivers synchronously, in
// publish order, with no redelivery — tests that need redelivery
// semantics construct a jobexec.Bus instead.
package membus

import (
	"context"
	"sync"
	"time"

	"github.com/fakturenn/invoicebridge/internal/bus"
)

type subscription struct {
	stream   string
	consumer string
	subjects map[string]bool
	handler  bus.Handler
}

// Bus is an in-memory bus.Bus.
type Bus struct {
	mu            sync.Mutex
	streams       map[string][]string
	subscriptions []*subscription
	published     []Message
}

// Message records a published payload for test assertions.
type Message struct {
	Subject string
	Payload []byte
}

// New creates an in-memory Bus.
func New() *Bus {
	return &Bus{streams: make(map[string][]string)}
}

var _ bus.Bus = (*Bus)(nil)

func (b *Bus) EnsureStream(ctx context.Context, name string, subjects []string, retention time.Duration) error {
	b.mu.Lock()
	b.streams[name] = subjects
	b.mu.Unlock()
	return nil
}

func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, Message{Subject: subject, Payload: payload})
	subs := make([]*subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.subjects[subject] {
			continue
		}
		outcome, err := sub.handler(ctx, subject, payload)
		if err != nil || outcome == bus.Nak {
			// No redelivery in the in-memory double; tests assert on
			// the returned error directly.
			return err
		}
	}
	return nil
}

func (b *Bus) EnsureConsumer(ctx context.Context, stream, consumer, filterSubject string) error {
	return nil
}

func (b *Bus) SubscribeDurable(ctx context.Context, stream, consumer string, subjects []string, handler bus.Handler) error {
	set := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		set[s] = true
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, &subscription{
		stream:   stream,
		consumer: consumer,
		subjects: set,
		handler:  handler,
	})
	b.mu.Unlock()
	return nil
}

// Published returns every message published so far, for test assertions.
func (b *Bus) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.published))
	copy(out, b.published)
	return out
}

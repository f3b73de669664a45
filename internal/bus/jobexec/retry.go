package jobexec

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	errorslib "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"

	"github.com/fakturenn/invoicebridge/internal/core"
)

var jitterSource = struct {
	mu  sync.Mutex
	rng *rand.Rand
}{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

// RetryPolicy governs how many times, and after how long a wait, Deliver
// re-invokes a subscriber whose handler Nak'd or returned a transient
// error. It mirrors go-job's own BackoffConfig shape so a deployment can
// share tuning between export-generation jobs and bus redelivery.
type RetryPolicy struct {
	MaxRetries int
	Backoff    job.BackoffConfig
	Retryable  func(error) bool
}

// shouldRetry decides whether deliverOne should re-invoke the subscriber
// for this subject after attempt failures so far. A caller-cancelled
// context is never retried regardless of classification.
func (p RetryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	classify := p.Retryable
	if classify == nil {
		classify = transientDeliveryError
	}
	return classify(err)
}

// transientDeliveryError is the default retry classifier: it treats
// timeouts, network hiccups, and the jobexec error kinds that represent
// infrastructure trouble rather than a permanently bad message as worth
// redelivering.
func transientDeliveryError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errorslib.IsRetryableError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	switch core.KindFromError(err) {
	case core.KindTimeout, core.KindInternal:
		return true
	}
	return false
}

// nextDelay computes how long deliverOne should wait before the given
// retry attempt (1-indexed), applying the configured backoff strategy and
// optional jitter.
func (p RetryPolicy) nextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := p.Backoff.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	maxInterval := p.Backoff.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	var delay time.Duration
	switch p.Backoff.Strategy {
	case job.BackoffFixed:
		delay = interval
	case job.BackoffExponential:
		delay = interval
		for i := 1; i < attempt && delay < maxInterval; i++ {
			delay *= 2
		}
		if delay > maxInterval {
			delay = maxInterval
		}
	default:
		return 0
	}
	return jitter(delay, p.Backoff.Jitter)
}

// jitter randomizes delay by up to +/-50% so a burst of Nak'd deliveries
// for the same subject doesn't retry in lockstep.
func jitter(delay time.Duration, enabled bool) time.Duration {
	if !enabled || delay <= 0 {
		return delay
	}
	half := float64(delay) * 0.5
	jitterSource.mu.Lock()
	offset := (jitterSource.rng.Float64()*2 - 1) * half
	jitterSource.mu.Unlock()
	scaled := float64(delay) + offset
	if scaled < 0 {
		return 0
	}
	return time.Duration(scaled)
}

// waitOrCancel blocks for delay, or returns early with ctx.Err() if the
// delivery's context is cancelled first.
func waitOrCancel(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

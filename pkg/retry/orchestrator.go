package retry

import (
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Orchestrator wires the §4.E decision policy to a backing Queue so
// callers get both "should I retry" and "when does it fire" from one
// place.
type Orchestrator struct {
	queue *Queue
	now   func() time.Time
}

// New builds an Orchestrator. now defaults to time.Now; a test can inject
// a deterministic clock.
func New(now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{queue: NewQueue(), now: now}
}

// Decide applies §4.E's decision policy for one failed attempt:
//  1. reasons in the always-retry set always get a controlled-backoff retry;
//  2. otherwise a best-effort command retries if idempotent or the failure
//     is known to predate transmission, capped by the command's deadline;
//  3. fail-fast commands, and best-effort commands outside those two
//     cases, complete with the supplied error.
func (o *Orchestrator) Decide(cmd Command, reason kerr.RetryReason, preTransmissionFailure bool, attempt int, deadline time.Time) Decision {
	now := o.now()
	if kerr.AlwaysRetry(reason) {
		return Decision{Retry: true, Reason: reason, Backoff: CapToDeadline(ControlledBackoff(attempt), now, deadline)}
	}

	switch cmd.Strategy() {
	case BestEffort:
		if cmd.Idempotent() || preTransmissionFailure {
			return Decision{Retry: true, Reason: reason, Backoff: CapToDeadline(ControlledBackoff(attempt), now, deadline)}
		}
	case FailFast:
	}
	return Decision{Retry: false, Reason: reason}
}

// Schedule enqueues fire to run after the decision's backoff has elapsed,
// and returns a Handle the caller can Cancel if the command completes or
// its connection tears down first. Schedule is a no-op (returns nil) for
// a decision that does not retry.
func (o *Orchestrator) Schedule(d Decision, fire func()) *Handle {
	if !d.Retry {
		return nil
	}
	return o.queue.Schedule(o.now().Add(d.Backoff), fire)
}

// Cancel removes a previously scheduled retry.
func (o *Orchestrator) Cancel(h *Handle) { o.queue.Cancel(h) }

// Fire runs every retry whose backoff has elapsed as of now.
func (o *Orchestrator) Fire() {
	for _, fn := range o.queue.Ready(o.now()) {
		fn()
	}
}

// NextFireAt reports when the next scheduled retry fires, if any.
func (o *Orchestrator) NextFireAt() (time.Time, bool) { return o.queue.NextFireAt() }

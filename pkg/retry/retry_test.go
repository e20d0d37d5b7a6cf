package retry

import (
	"testing"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

func TestControlledBackoffTable(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Millisecond},
		{1, 10 * time.Millisecond},
		{2, 50 * time.Millisecond},
		{3, 100 * time.Millisecond},
		{4, 500 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, c := range cases {
		if got := ControlledBackoff(c.attempt); got != c.want {
			t.Errorf("ControlledBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestCapToDeadlineCapsAndFallsBack(t *testing.T) {
	now := time.Unix(1000, 0)

	// No deadline: delay passes through untouched.
	if got := CapToDeadline(500*time.Millisecond, now, time.Time{}); got != 500*time.Millisecond {
		t.Fatalf("no-deadline delay = %v, want 500ms", got)
	}

	// Deadline tighter than delay: capped.
	deadline := now.Add(200 * time.Millisecond)
	if got := CapToDeadline(500*time.Millisecond, now, deadline); got != 200*time.Millisecond {
		t.Fatalf("capped delay = %v, want 200ms", got)
	}

	// Deadline already passed: capping would go negative, so the
	// uncapped delay is used as a fallback.
	past := now.Add(-time.Second)
	if got := CapToDeadline(500*time.Millisecond, now, past); got != 500*time.Millisecond {
		t.Fatalf("past-deadline fallback delay = %v, want 500ms", got)
	}
}

type fakeCmd struct {
	idempotent bool
	strategy   Strategy
}

func (f fakeCmd) Idempotent() bool { return f.idempotent }
func (f fakeCmd) Strategy() Strategy { return f.strategy }

func TestDecideAlwaysRetrySet(t *testing.T) {
	o := New(func() time.Time { return time.Unix(0, 0) })
	cmd := fakeCmd{idempotent: false, strategy: FailFast}
	d := o.Decide(cmd, kerr.ReasonKVNotMyVbucket, false, 0, time.Time{})
	if !d.Retry {
		t.Fatalf("expected always-retry reason to retry even for fail-fast command")
	}
	if d.Backoff != time.Millisecond {
		t.Fatalf("backoff = %v, want 1ms at attempt 0", d.Backoff)
	}
}

func TestDecideBestEffortNonIdempotentNotPreTransmission(t *testing.T) {
	o := New(func() time.Time { return time.Unix(0, 0) })
	cmd := fakeCmd{idempotent: false, strategy: BestEffort}
	d := o.Decide(cmd, kerr.RetryReason("some_other_failure"), false, 0, time.Time{})
	if d.Retry {
		t.Fatalf("expected no retry for non-idempotent, non-pre-transmission best-effort failure")
	}
}

func TestDecideBestEffortIdempotentRetries(t *testing.T) {
	o := New(func() time.Time { return time.Unix(0, 0) })
	cmd := fakeCmd{idempotent: true, strategy: BestEffort}
	d := o.Decide(cmd, kerr.RetryReason("some_other_failure"), false, 2, time.Time{})
	if !d.Retry || d.Backoff != 50*time.Millisecond {
		t.Fatalf("got %+v, want retry with 50ms backoff", d)
	}
}

func TestDecideFailFastNeverRetriesOutsideAlwaysSet(t *testing.T) {
	o := New(func() time.Time { return time.Unix(0, 0) })
	cmd := fakeCmd{idempotent: true, strategy: FailFast}
	d := o.Decide(cmd, kerr.RetryReason("some_other_failure"), true, 0, time.Time{})
	if d.Retry {
		t.Fatalf("expected fail-fast strategy to never retry outside the always-retry set")
	}
}

func TestQueueFiresInOrderAndSupportsCancel(t *testing.T) {
	q := NewQueue()
	base := time.Unix(0, 0)

	var fired []int
	h1 := q.Schedule(base.Add(30*time.Millisecond), func() { fired = append(fired, 1) })
	q.Schedule(base.Add(10*time.Millisecond), func() { fired = append(fired, 2) })
	q.Schedule(base.Add(20*time.Millisecond), func() { fired = append(fired, 3) })

	q.Cancel(h1)

	ready := q.Ready(base.Add(25 * time.Millisecond))
	for _, fn := range ready {
		fn()
	}

	if len(fired) != 2 || fired[0] != 2 || fired[1] != 3 {
		t.Fatalf("fired = %v, want [2 3] (cancelled entry skipped, fired in fire-time order)", fired)
	}

	if _, ok := q.NextFireAt(); ok {
		t.Fatalf("expected no pending retries after Ready drained everything due to fire")
	}
}

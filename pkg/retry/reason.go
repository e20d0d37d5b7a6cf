// Package retry implements the retry orchestrator (§4.E): a decision
// policy over always-retry reasons and per-request strategies, backed by
// a controlled backoff table and a deadline-ordered pending-retry queue.
package retry

import (
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Strategy names how aggressively a command should be retried when its
// failure reason isn't in the always-retry set (§4.E(2)).
type Strategy int

const (
	// BestEffort retries idempotent operations, or any operation whose
	// failure is known to have happened before transmission.
	BestEffort Strategy = iota
	// FailFast never retries outside the always-retry set.
	FailFast
)

// Command is the minimal view of a retryable operation the orchestrator
// needs: whether repeating it is safe, and how it wants non-mandatory
// failures handled.
type Command interface {
	Idempotent() bool
	Strategy() Strategy
}

// Decision is the orchestrator's verdict for one failed attempt.
type Decision struct {
	Retry   bool
	Reason  kerr.RetryReason
	Backoff time.Duration
}

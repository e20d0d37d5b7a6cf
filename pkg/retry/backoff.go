package retry

import (
	"sync"
	"time"

	"github.com/twmb/go-rbtree"
)

// ControlledBackoff returns the controlled-backoff delay for the given
// zero-based attempt count (§4.E "Controlled backoff (ms) by attempt
// count: 0→1, 1→10, 2→50, 3→100, 4→500, ≥5→1000").
func ControlledBackoff(attempt int) time.Duration {
	switch {
	case attempt <= 0:
		return 1 * time.Millisecond
	case attempt == 1:
		return 10 * time.Millisecond
	case attempt == 2:
		return 50 * time.Millisecond
	case attempt == 3:
		return 100 * time.Millisecond
	case attempt == 4:
		return 500 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}

// CapToDeadline caps delay at (deadline - now). A zero deadline means no
// deadline is in effect. If capping would make the delay negative (the
// deadline has already passed), the uncapped delay is returned instead as
// a safety fallback, since the deadline timer will fire first anyway
// (§4.E "Cap").
func CapToDeadline(delay time.Duration, now, deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return delay
	}
	remaining := deadline.Sub(now)
	capped := delay
	if remaining < capped {
		capped = remaining
	}
	if capped < 0 {
		return delay
	}
	return capped
}

// pendingItem is one scheduled retry, ordered by fire time with insertion
// order as a tiebreaker so same-instant retries fire in schedule order.
type pendingItem struct {
	fireAt time.Time
	seq    uint64
	fire   func()
	handle *Handle
}

func (p *pendingItem) Less(than rbtree.Item) bool {
	o := than.(*pendingItem)
	if p.fireAt.Equal(o.fireAt) {
		return p.seq < o.seq
	}
	return p.fireAt.Before(o.fireAt)
}

// Handle references one scheduled retry so it can be cancelled before it
// fires (e.g. the owning connection tore down first).
type Handle struct {
	node *rbtree.Node
}

// Queue orders pending retries by fire time in a red-black tree, so the
// orchestrator can always find "what fires next" without scanning every
// pending retry (the teacher pack's `github.com/twmb/go-rbtree`, the same
// ordered-structure choice the rest of the corpus reaches for here).
type Queue struct {
	mu   sync.Mutex
	tree rbtree.Tree
	seq  uint64
}

// NewQueue returns an empty retry queue.
func NewQueue() *Queue { return &Queue{} }

// Schedule enqueues fire to run at fireAt and returns a Handle Cancel can
// use to remove it before it fires.
func (q *Queue) Schedule(fireAt time.Time, fire func()) *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	item := &pendingItem{fireAt: fireAt, seq: q.seq, fire: fire}
	h := &Handle{node: q.tree.Insert(item)}
	item.handle = h
	return h
}

// Cancel removes h from the queue if it is still pending. Cancelling an
// already-fired or already-cancelled handle is a no-op.
func (q *Queue) Cancel(h *Handle) {
	if h == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if h.node == nil {
		return
	}
	q.tree.Delete(h.node)
	h.node = nil
}

// Ready pops and returns every retry whose fireAt is at or before now.
func (q *Queue) Ready(now time.Time) []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fns []func()
	for {
		n := q.tree.Min()
		if n == nil {
			break
		}
		item := n.Item.(*pendingItem)
		if item.fireAt.After(now) {
			break
		}
		q.tree.Delete(n)
		item.handle.node = nil
		fns = append(fns, item.fire)
	}
	return fns
}

// NextFireAt reports the earliest scheduled fire time, if any is pending.
func (q *Queue) NextFireAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.tree.Min()
	if n == nil {
		return time.Time{}, false
	}
	return n.Item.(*pendingItem).fireAt, true
}

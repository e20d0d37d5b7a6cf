package kvconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kvlog"
)

// Pool owns the reconnect policy the §4.G state diagram assigns to a
// layer above one socket ("connecting --socket_err--> disconnected
// (schedule reconnect with backoff)"): it lazily dials one *Conn per
// address, recycles a dead connection on next use, and backs off between
// reconnect attempts to the same address, grounded on the teacher's
// broker.loadConnection (pkg/kgo/broker.go): a per-key mutex guarding a
// cached, lazily-dialed connection, reused here as a per-address cache
// instead of a per-API-key one.
type Pool struct {
	cfgFor func(address string) Config

	mu    sync.Mutex
	slots map[string]*poolSlot

	minBackoff time.Duration
	maxBackoff time.Duration
	log        kvlog.Logger
}

type poolSlot struct {
	mu       sync.Mutex
	conn     *Conn
	failures int
	lastFail time.Time
}

// NewPool returns a Pool. cfgFor builds the dial configuration for a
// given node address (so credentials/bucket/logger stay consistent
// across every connection the pool opens).
func NewPool(cfgFor func(address string) Config, log kvlog.Logger) *Pool {
	if log == nil {
		log = kvlog.Nop{}
	}
	return &Pool{
		cfgFor:     cfgFor,
		slots:      make(map[string]*poolSlot),
		minBackoff: 10 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		log:        log,
	}
}

// Get returns a ready connection to address, dialing (or redialing, after
// a backoff-gated wait if the last attempt to this address failed
// recently) as needed. A connection that has gone dead since it was
// cached is discarded and redialed.
func (p *Pool) Get(ctx context.Context, address string) (*Conn, error) {
	p.mu.Lock()
	slot, ok := p.slots[address]
	if !ok {
		slot = &poolSlot{}
		p.slots[address] = slot
	}
	p.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.conn != nil {
		if slot.conn.State() != StateClosed {
			return slot.conn, nil
		}
		slot.conn = nil
	}

	if wait := p.backoffRemaining(slot); wait > 0 {
		p.log.Log(kvlog.LevelDebug, "kvconn: reconnect backoff", "address", address, "wait", wait)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c, err := Dial(ctx, p.cfgFor(address))
	if err != nil {
		slot.failures++
		slot.lastFail = time.Now()
		return nil, fmt.Errorf("kvconn: pool dial %s: %w", address, err)
	}

	slot.conn = c
	slot.failures = 0
	return c, nil
}

// backoffRemaining returns how much longer the caller should wait before
// redialing address, per the doubling-up-to-max policy below (distinct
// from §4.E's controlled-backoff table, which governs per-operation
// retries rather than reconnect attempts).
func (p *Pool) backoffRemaining(slot *poolSlot) time.Duration {
	if slot.failures == 0 {
		return 0
	}
	delay := p.minBackoff << uint(slot.failures-1)
	if delay > p.maxBackoff || delay <= 0 {
		delay = p.maxBackoff
	}
	elapsed := time.Since(slot.lastFail)
	if elapsed >= delay {
		return 0
	}
	return delay - elapsed
}

// Evict marks address's cached connection as unusable, forcing the next
// Get to redial. Used when a caller observes a connection misbehaving
// without the connection itself having noticed yet.
func (p *Pool) Evict(address string) {
	p.mu.Lock()
	slot, ok := p.slots[address]
	p.mu.Unlock()
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.conn != nil {
		slot.conn.die(fmt.Errorf("kvconn: pool evicted: %w", kerr.RequestCancelled))
		slot.conn = nil
	}
}

// Close tears down every connection the pool has open.
func (p *Pool) Close() {
	p.mu.Lock()
	slots := make([]*poolSlot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	p.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.die(fmt.Errorf("kvconn: pool closed: %w", kerr.RequestCancelled))
		}
		s.mu.Unlock()
	}
}

package kvconn

import (
	"sync"
	"sync/atomic"

	"github.com/couchbaselabs/kvcore/pkg/kmsg"
)

// pendingOp is one outstanding request awaiting its response (§4.G
// "Multiplexing"). complete runs at most once: from a matched response or
// a teardown sweep. An op removed with cancel (a deadline or a failed
// send) is never completed; its caller reports the error itself.
type pendingOp struct {
	complete func(resp kmsg.Response, err error)
}

// pendingTable correlates outbound opaques to their waiting callbacks.
// Owned by one connection and touched only from that connection's
// read/write paths (§5 "The pending-ops table is owned by its
// connection").
type pendingTable struct {
	mu      sync.Mutex
	ops     map[uint32]*pendingOp
	counter uint32
}

func newPendingTable() *pendingTable {
	return &pendingTable{ops: make(map[uint32]*pendingOp)}
}

// nextOpaque draws the next value from the per-connection opaque counter
// (§4.G "a unique opaque drawn from a per-connection counter").
func (t *pendingTable) nextOpaque() uint32 {
	return atomic.AddUint32(&t.counter, 1)
}

func (t *pendingTable) register(opaque uint32, op *pendingOp) {
	t.mu.Lock()
	t.ops[opaque] = op
	t.mu.Unlock()
}

// complete looks up and removes the pending op for opaque, then invokes
// its callback. It reports false if no such opaque was outstanding (§3
// "on response, the opaque selects exactly one pending operation and
// that operation is removed before handler invocation").
func (t *pendingTable) complete(opaque uint32, resp kmsg.Response, err error) bool {
	t.mu.Lock()
	op, ok := t.ops[opaque]
	if ok {
		delete(t.ops, opaque)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	op.complete(resp, err)
	return true
}

// cancel removes opaque without treating it as a normal response,
// returning the removed entry so a caller can avoid double-completion.
func (t *pendingTable) cancel(opaque uint32) (*pendingOp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[opaque]
	if ok {
		delete(t.ops, opaque)
	}
	return op, ok
}

// drain empties the table, completing every outstanding op with err
// (§4.G "Graceful teardown", §7 "socket_closed_while_in_flight").
func (t *pendingTable) drain(err error) {
	t.mu.Lock()
	ops := t.ops
	t.ops = make(map[uint32]*pendingOp)
	t.mu.Unlock()
	for _, op := range ops {
		op.complete(nil, err)
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

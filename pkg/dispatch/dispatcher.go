// Package dispatch implements the operation dispatcher (§4.H): routes a
// logical KV operation to the connection owning its vbucket's active
// node, and an HTTP-style operation to a node exposing the required
// service, integrating the retry orchestrator (E), configuration
// monitor (F), and connection state machine (G).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
	"github.com/couchbaselabs/kvcore/pkg/collections"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
	"github.com/couchbaselabs/kvcore/pkg/retry"
)

// DocumentID identifies the document a KV command targets (§3 "Document
// identity"): a bucket/scope/collection tuple plus the raw key. Scope and
// Collection empty means the default collection, which suppresses the
// LEB128 prefix entirely.
type DocumentID struct {
	Bucket     string
	Scope      string
	Collection string
	Key        []byte
}

// Conn is the subset of kvconn.Conn the dispatcher drives. Kept narrow so
// this package depends on kvconn only through this interface, matching
// the collections/cfgmon Sender/Fetcher layering decision.
type Conn interface {
	Execute(ctx context.Context, vbucket uint16, req kmsg.Request) (kmsg.Response, error)
	Resolver() *collections.Resolver
}

// Dialer opens a connection to a KV node's address ("host:port").
type Dialer func(ctx context.Context, address string) (Conn, error)

// Command is one KV operation to dispatch (§3 "Retry context (per
// request)"). NewRequest is called once per attempt with the
// collection-prefixed key, since a retry may need to re-derive the
// request after the collection cache was invalidated.
type Command struct {
	ID         DocumentID
	NewRequest func(key []byte) kmsg.Request
	Idempotent bool
	Strategy   retry.Strategy
	Deadline   time.Time
}

// asRetryCommand adapts Command to retry.Command without Command itself
// having to juggle a field and a method of the same name.
type asRetryCommand struct{ cmd *Command }

func (a asRetryCommand) Idempotent() bool         { return a.cmd.Idempotent }
func (a asRetryCommand) Strategy() retry.Strategy { return a.cmd.Strategy }

// Dispatcher routes operations against the most recently accepted
// cluster configuration (§4.H, §5 "copy-on-replace" snapshot).
type Dispatcher struct {
	dial    Dialer
	orch    *retry.Orchestrator
	metrics *Metrics

	mu    sync.RWMutex
	cfg   bucketcfg.Config
	conns map[string]Conn
}

// New returns a Dispatcher with no configuration yet; UpdateConfig (wired
// as a cfgmon.Listener) must be called before Dispatch can route.
func New(dial Dialer, orch *retry.Orchestrator, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		dial:  dial,
		orch:  orch,
		metrics: metrics,
		conns: make(map[string]Conn),
	}
}

// UpdateConfig installs a new routing snapshot. Intended as a
// cfgmon.Listener: "if the configuration monitor signals a newer map
// while an op is in-flight, the op is not disturbed; only retries pick
// the new map" (§4.H) — in-flight Dispatch calls already captured their
// own snapshot before this runs.
func (d *Dispatcher) UpdateConfig(cfg bucketcfg.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() bucketcfg.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// connFor memoizes one Conn per node address, dialing lazily and
// tolerating a benign duplicate dial race under concurrent first use.
func (d *Dispatcher) connFor(ctx context.Context, address string) (Conn, error) {
	d.mu.RLock()
	c, ok := d.conns[address]
	d.mu.RUnlock()
	if ok {
		return c, nil
	}

	nc, err := d.dial(ctx, address)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.conns[address]; ok {
		return existing, nil
	}
	d.conns[address] = nc
	return nc, nil
}

// Dispatch routes cmd to the active node for its document's vbucket,
// retrying per §4.E until the retry orchestrator gives up or ctx/the
// command's deadline expires.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) (kmsg.Response, error) {
	if len(cmd.ID.Key) > kvproto.MaxKeyLength {
		return nil, fmt.Errorf("dispatch: key length %d exceeds %d bytes: %w", len(cmd.ID.Key), kvproto.MaxKeyLength, kerr.InvalidArgument)
	}

	rcmd := asRetryCommand{cmd}
	attempt := 0
	written := false

	for {
		cfg := d.snapshot()
		if len(cfg.VBuckets) == 0 {
			return nil, fmt.Errorf("dispatch: no cluster configuration: %w", kerr.ServiceNotAvailable)
		}

		vbucket := vbucketFor(cmd.ID.Key, len(cfg.VBuckets))
		nodeIdxs := cfg.VBucketFor(int(vbucket))
		if len(nodeIdxs) == 0 || nodeIdxs[0] < 0 || nodeIdxs[0] >= len(cfg.Nodes) {
			return nil, fmt.Errorf("dispatch: no active node for vbucket %d: %w", vbucket, kerr.ServiceNotAvailable)
		}
		node := cfg.Nodes[nodeIdxs[0]]
		address := fmt.Sprintf("%s:%d", node.Hostname, node.Ports.KV)

		resp, err := d.tryOnce(ctx, cmd, address, vbucket)
		if err == nil {
			d.metrics.observeSuccess(attempt)
			return resp, nil
		}

		reason, preTransmission := classify(err)
		if !preTransmission {
			written = true
		}
		decision := d.orch.Decide(rcmd, reason, preTransmission, attempt, cmd.Deadline)
		d.metrics.observeFailure(reason, decision.Retry)
		if !decision.Retry {
			return nil, err
		}
		d.metrics.observeBackoff(decision.Backoff.Seconds())

		timer := time.NewTimer(decision.Backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		if !cmd.Deadline.IsZero() && !time.Now().Before(cmd.Deadline) {
			if written {
				return nil, fmt.Errorf("dispatch: deadline exceeded: %w", kerr.AmbiguousTimeout)
			}
			return nil, fmt.Errorf("dispatch: deadline exceeded: %w", kerr.UnambiguousTimeout)
		}
		attempt++
	}
}

func (d *Dispatcher) tryOnce(ctx context.Context, cmd *Command, address string, vbucket uint16) (kmsg.Response, error) {
	conn, err := d.connFor(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dispatch: dial %s: %w", address, err)
	}

	key := cmd.ID.Key
	if cmd.ID.Scope != "" || cmd.ID.Collection != "" {
		path := cmd.ID.Scope + "." + cmd.ID.Collection
		_, collectionUID, err := conn.Resolver().Resolve(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("dispatch: resolving collection %q: %w", path, err)
		}
		key = kvproto.EncodeCollectionKey(collectionUID, cmd.ID.Key)
	}

	resp, err := conn.Execute(ctx, vbucket, cmd.NewRequest(key))
	if err != nil {
		var kvctx *kerr.KeyValueContext
		if errors.As(err, &kvctx) && (cmd.ID.Scope != "" || cmd.ID.Collection != "") {
			conn.Resolver().Observe(cmd.ID.Scope+"."+cmd.ID.Collection, 0, err)
		}
		return nil, err
	}
	return resp, nil
}

// classify derives a retry reason and whether the failure happened
// before transmission from a Dispatch error (§4.E "always-retry set"
// check, §4.E "pre-transmission failure").
func classify(err error) (kerr.RetryReason, bool) {
	var kvctx *kerr.KeyValueContext
	if errors.As(err, &kvctx) {
		if reason, ok := kmsg.RetryReasonForStatus(kvproto.Status(kvctx.StatusCode)); ok {
			return reason, false
		}
		return "", false
	}
	switch {
	case errors.Is(err, kerr.SocketNotAvailable), errors.Is(err, kerr.SocketClosedWhileInFlight):
		return kerr.ReasonSocketNotAvailable, true
	case errors.Is(err, kerr.ServiceNotAvailable):
		return kerr.ReasonServiceNotAvailable, true
	}
	return "", false
}

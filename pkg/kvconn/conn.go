// Package kvconn implements the KV connection state machine (§4.G): one
// TCP connection driven through HELLO negotiation, SASL authentication,
// optional bucket selection, and an initial configuration fetch, after
// which it multiplexes operations by opaque until torn down.
package kvconn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
	"github.com/couchbaselabs/kvcore/pkg/collections"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
	"github.com/couchbaselabs/kvcore/pkg/kvlog"
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
	"github.com/couchbaselabs/kvcore/pkg/sasl"
)

// State is the connection's position in the §4.G state diagram.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateNegotiatingHello
	StateListingMechs
	StateAuthenticating
	StateSelectingBucket
	StateFetchingInitialConfig
	StateReady
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateNegotiatingHello:
		return "negotiating_hello"
	case StateListingMechs:
		return "listing_mechs"
	case StateAuthenticating:
		return "authenticating"
	case StateSelectingBucket:
		return "selecting_bucket"
	case StateFetchingInitialConfig:
		return "fetching_initial_config"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// Dialer opens the underlying transport; injected so tests and TLS setup
// don't need to change this package (mirrors the teacher's cfg.dialFn).
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Credentials authenticate the connection via SASL (§4.C).
type Credentials struct {
	Username string
	Password string
}

// Config configures one KV connection.
type Config struct {
	Address        string
	Dialer         Dialer
	ClientID       string
	UserAgent      string
	Bucket         string
	Credentials    *Credentials
	Mechanisms     map[string]sasl.Mechanism
	Logger         kvlog.Logger
	InFlightWindow int
	QueueCapacity  int
	OnConfigPush   func(bucketcfg.Config)
}

func (c *Config) setDefaults() {
	if c.Dialer == nil {
		c.Dialer = func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, address)
		}
	}
	if c.Mechanisms == nil {
		c.Mechanisms = sasl.DefaultMechanisms()
	}
	if c.Logger == nil {
		c.Logger = kvlog.Nop{}
	}
	if c.InFlightWindow <= 0 {
		c.InFlightWindow = 1024
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
}

// bufPool recycles encoded-frame buffers across writes, the same shape
// as the teacher's broker.bufPool (pkg/kgo/broker.go).
type bufPool struct{ p *sync.Pool }

func newBufPool() bufPool {
	return bufPool{p: &sync.Pool{New: func() any { b := make([]byte, 0, 1<<10); return &b }}}
}

func (p bufPool) get() []byte  { return (*p.p.Get().(*[]byte))[:0] }
func (p bufPool) put(b []byte) { p.p.Put(&b) }

type opResult struct {
	resp kmsg.Response
	err  error
}

// Conn is one multiplexed KV connection.
type Conn struct {
	cfg Config
	log kvlog.Logger

	netConn net.Conn
	enc     kvproto.Encoder
	dec     *kvproto.Decoder

	pending *pendingTable
	resolv  *collections.Resolver

	sendCh chan []byte
	bufs   bufPool

	inflight chan struct{}
	queued   int32

	state int32 // atomic State

	// dead/dieMu follow the teacher's broker/brokerCxn teardown pattern
	// (pkg/kgo/broker.go): dead is checked lock-free on the hot path,
	// dieMu only serializes against the one-time close.
	dead     int32
	dieMu    sync.RWMutex
	closedCh chan struct{}
	wg       sync.WaitGroup

	features NegotiatedFeatures
}

// Dial opens a connection and drives it through the full handshake
// (§4.G): TCP connect, HELLO, SASL (if credentials given), SELECT_BUCKET
// (if a bucket is given), and an initial get_cluster_config fetch. Each
// stage's failure is reported wrapped with the state it failed in.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg.setDefaults()

	c := &Conn{
		cfg:      cfg,
		log:      cfg.Logger,
		dec:      kvproto.NewDecoder(cfg.Logger),
		pending:  newPendingTable(),
		sendCh:   make(chan []byte, 256),
		bufs:     newBufPool(),
		inflight: make(chan struct{}, cfg.InFlightWindow),
		closedCh: make(chan struct{}),
	}
	c.resolv = collections.New(c)
	c.setState(StateConnecting)

	nc, err := cfg.Dialer(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("kvconn: dial %s: %w", cfg.Address, kerr.SocketNotAvailable)
	}
	c.netConn = nc

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	if err := c.handshake(ctx); err != nil {
		c.die(err)
		return nil, err
	}

	c.setState(StateReady)
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	c.setState(StateNegotiatingHello)
	helloResp, err := c.Execute(ctx, 0, &kmsg.HelloRequest{
		ClientID: clientIdentity(c.cfg.ClientID, c.cfg.UserAgent),
		Features: defaultFeatures,
	})
	if err != nil {
		return fmt.Errorf("kvconn: hello negotiation: %w", err)
	}
	c.features = negotiatedFrom(helloResp.(*kmsg.HelloResponse))

	if c.cfg.Credentials != nil {
		c.setState(StateListingMechs)
		mechsResp, err := c.Execute(ctx, 0, &kmsg.SaslListMechsRequest{})
		if err != nil {
			return fmt.Errorf("kvconn: list mechs: %w", err)
		}

		c.setState(StateAuthenticating)
		mech, err := sasl.SelectMechanism(mechsResp.(*kmsg.SaslListMechsResponse).Mechanisms, c.cfg.Mechanisms)
		if err != nil {
			return fmt.Errorf("kvconn: selecting sasl mechanism: %w", err)
		}
		if err := c.authenticate(ctx, mech); err != nil {
			return fmt.Errorf("kvconn: sasl authentication: %w", err)
		}
	}

	if c.cfg.Bucket != "" {
		c.setState(StateSelectingBucket)
		if _, err := c.Execute(ctx, 0, &kmsg.SelectBucketRequest{Bucket: c.cfg.Bucket}); err != nil {
			return fmt.Errorf("kvconn: select bucket %q: %w", c.cfg.Bucket, err)
		}
	}

	c.setState(StateFetchingInitialConfig)
	if _, err := c.GetClusterConfig(ctx); err != nil {
		return fmt.Errorf("kvconn: fetching initial configuration: %w", err)
	}
	return nil
}

// authenticate drives one SASL mechanism's challenge/response loop over
// sasl_auth then sasl_step (§4.C), propagating the server's continuation
// payload back into Session.Challenge until done.
func (c *Conn) authenticate(ctx context.Context, mech sasl.Mechanism) error {
	session, initial, err := mech.Authenticate(ctx, c.cfg.Credentials.Username, c.cfg.Credentials.Password)
	if err != nil {
		return err
	}

	resp, err := c.Execute(ctx, 0, &kmsg.SaslAuthRequest{Mechanism: mech.Name(), Payload: initial})
	if err != nil {
		return err
	}
	if mech.Name() == "PLAIN" {
		// PLAIN has no step phase: a non-error reply to sasl_auth ends it.
		return nil
	}
	payload := resp.(*kmsg.SaslStepResponse).Payload

	for {
		done, next, err := session.Challenge(payload)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		stepResp, err := c.Execute(ctx, 0, &kmsg.SaslStepRequest{Mechanism: mech.Name(), Payload: next})
		if err != nil {
			return err
		}
		payload = stepResp.(*kmsg.SaslStepResponse).Payload
	}
}

func (c *Conn) setState(s State) { atomic.StoreInt32(&c.state, int32(s)) }

// State reports the connection's current position in the state diagram.
func (c *Conn) State() State { return State(atomic.LoadInt32(&c.state)) }

// acquireSlot enforces the bounded in-flight window plus a bounded FIFO
// of waiters beyond it (§5 "Backpressure"): exceeding the FIFO capacity
// fails fast before any network attempt, matching request_cancelled.
func (c *Conn) acquireSlot(ctx context.Context) error {
	if atomic.AddInt32(&c.queued, 1) > int32(c.cfg.QueueCapacity) {
		atomic.AddInt32(&c.queued, -1)
		return fmt.Errorf("kvconn: backpressure queue full: %w", kerr.RequestCancelled)
	}
	defer atomic.AddInt32(&c.queued, -1)

	select {
	case c.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closedCh:
		return fmt.Errorf("kvconn: connection closed: %w", kerr.SocketNotAvailable)
	}
}

func (c *Conn) releaseSlot() { <-c.inflight }

// Execute sends req with the given vbucket (0 for non-KV or
// bucket-agnostic opcodes) and waits for its matched response (§4.G
// "Multiplexing").
func (c *Conn) Execute(ctx context.Context, vbucket uint16, req kmsg.Request) (kmsg.Response, error) {
	if atomic.LoadInt32(&c.dead) == 1 {
		return nil, fmt.Errorf("kvconn: connection dead: %w", kerr.SocketNotAvailable)
	}
	if c.State() == StateDraining {
		return nil, fmt.Errorf("kvconn: connection draining: %w", kerr.RequestCancelled)
	}

	if err := c.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer c.releaseSlot()

	opaque := c.pending.nextOpaque()
	resultCh := make(chan opResult, 1)
	c.pending.register(opaque, &pendingOp{
		complete: func(resp kmsg.Response, err error) { resultCh <- opResult{resp, err} },
	})

	framingExtras, extras, key, value := req.Assemble()
	magic := kvproto.MagicClientRequest
	if req.Alt() {
		magic = kvproto.MagicAltClientRequest
	}

	var datatype kvproto.Datatype
	if _, ok := req.(*kmsg.MutationRequest); ok && c.features.Snappy && len(value) > 0 {
		value = kvproto.CompressValue(value)
		datatype |= kvproto.DatatypeSnappy
	}

	frame := &kvproto.Frame{
		Header: kvproto.Header{
			Magic:    magic,
			Opcode:   uint8(req.Opcode()),
			Datatype: datatype,
			Vbucket:  vbucket,
			Opaque:   opaque,
		},
		FramingExtra: framingExtras,
		Extras:       extras,
		Key:          key,
		Value:        value,
	}

	buf := c.bufs.get()
	buf, err := c.enc.Encode(buf, frame)
	if err != nil {
		c.pending.cancel(opaque)
		c.bufs.put(buf)
		return nil, err
	}

	// dieMu guards the send against a concurrent die() closing sendCh: an
	// RLock holder is guaranteed die() hasn't reached its Lock yet, so
	// sendCh is still open for the duration of this select (teacher
	// pattern, pkg/kgo/broker.go's dieMu around "b.reqs <- ...").
	c.dieMu.RLock()
	if atomic.LoadInt32(&c.dead) == 1 {
		c.dieMu.RUnlock()
		c.pending.cancel(opaque)
		c.bufs.put(buf)
		return nil, fmt.Errorf("kvconn: connection closed: %w", kerr.SocketNotAvailable)
	}
	select {
	case c.sendCh <- buf:
		c.dieMu.RUnlock()
	case <-ctx.Done():
		c.dieMu.RUnlock()
		c.pending.cancel(opaque)
		c.bufs.put(buf)
		return nil, fmt.Errorf("kvconn: %w", kerr.UnambiguousTimeout)
	}

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		if _, ok := c.pending.cancel(opaque); ok {
			return nil, fmt.Errorf("kvconn: %w", kerr.AmbiguousTimeout)
		}
		// The response raced in concurrently with cancellation and has
		// already been removed from the pending table; take it rather
		// than report a spurious timeout.
		res := <-resultCh
		return res.resp, res.err
	}
}

// GetCollectionID implements collections.Sender.
func (c *Conn) GetCollectionID(ctx context.Context, path string) (kmsg.GetCollectionIDResponse, error) {
	resp, err := c.Execute(ctx, 0, &kmsg.GetCollectionIDRequest{Path: path})
	if err != nil {
		return kmsg.GetCollectionIDResponse{}, err
	}
	return *resp.(*kmsg.GetCollectionIDResponse), nil
}

// Resolver returns this connection's collection-ID cache.
func (c *Conn) Resolver() *collections.Resolver { return c.resolv }

// GetClusterConfig implements cfgmon.Fetcher.
func (c *Conn) GetClusterConfig(ctx context.Context) (bucketcfg.Config, error) {
	resp, err := c.Execute(ctx, 0, &kmsg.GetClusterConfigRequest{})
	if err != nil {
		return bucketcfg.Config{}, err
	}
	return bucketcfg.Parse(resp.(*kmsg.ClusterConfigResponse).JSON)
}

// Features reports which HELLO features this connection negotiated.
func (c *Conn) Features() NegotiatedFeatures { return c.features }

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for buf := range c.sendCh {
		_, err := c.netConn.Write(buf)
		c.bufs.put(buf)
		if err != nil {
			c.die(fmt.Errorf("kvconn: write: %w", kerr.SocketClosedWhileInFlight))
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	rbuf := make([]byte, 32*1024)
	for {
		n, err := c.netConn.Read(rbuf)
		if n > 0 {
			c.dec.Feed(rbuf[:n])
			for {
				frame, res, ferr := c.dec.Next()
				if ferr != nil {
					c.die(fmt.Errorf("kvconn: %w", kerr.EndOfStream))
					return
				}
				if res == kvproto.ResultNeedData {
					break
				}
				c.handleFrame(frame)
			}
		}
		if err != nil {
			c.die(fmt.Errorf("kvconn: read: %w", kerr.EndOfStream))
			return
		}
	}
}

func (c *Conn) handleFrame(f *kvproto.Frame) {
	if f.Header.Magic == kvproto.MagicServerRequest {
		c.handleServerRequest(f)
		return
	}

	// auth_continue is not a failure: the SASL step is mid-exchange and
	// the body carries the server's next challenge, parsed the same way
	// a success response would be (§4.C).
	status := kvproto.Status(f.Header.StatusCode)
	if status != kvproto.StatusSuccess && status != kvproto.StatusAuthContinue {
		kind := kmsg.KindForStatus(status)
		c.pending.complete(f.Header.Opaque, nil, &kerr.KeyValueContext{
			Kind:       kind,
			Opaque:     f.Header.Opaque,
			StatusCode: uint16(status),
		})
		return
	}

	entry, ok := kmsg.Lookup(kvproto.Opcode(f.Header.Opcode))
	if !ok {
		c.pending.complete(f.Header.Opaque, nil, fmt.Errorf("kvconn: unknown response opcode 0x%02x: %w", f.Header.Opcode, kerr.ParsingFailure))
		return
	}
	resp := entry.NewResponse()
	if err := resp.Parse(f); err != nil {
		c.pending.complete(f.Header.Opaque, nil, fmt.Errorf("kvconn: %w: %v", kerr.ParsingFailure, err))
		return
	}
	c.pending.complete(f.Header.Opaque, resp, nil)
}

// handleServerRequest dispatches a server-initiated frame; these don't
// consume a pending-ops slot (§4.G "Server-initiated frames ... do not
// consume a pending slot; they are dispatched to F (config push) or to
// internal handlers").
func (c *Conn) handleServerRequest(f *kvproto.Frame) {
	switch kvproto.ServerOpcode(f.Header.Opcode) {
	case kvproto.ServerOpClusterMapChangeNotification:
		if c.cfg.OnConfigPush == nil {
			return
		}
		cfg, err := bucketcfg.Parse(f.Value)
		if err != nil {
			c.log.Log(kvlog.LevelWarn, "discarding malformed cluster_map_change_notification", "err", err)
			return
		}
		if host, _, err := net.SplitHostPort(c.netConn.RemoteAddr().String()); err == nil {
			bucketcfg.FillThisNode(&cfg, host)
		}
		c.cfg.OnConfigPush(cfg)
	default:
		c.log.Log(kvlog.LevelDebug, "ignoring unrecognized server request", "opcode", f.Header.Opcode)
	}
}

// die tears the connection down exactly once: stop accepting new sends,
// drain every pending op with err, and close the socket (teacher pattern
// from pkg/kgo/broker.go's brokerCxn.die: atomic dead flag swapped first,
// dieMu taken only to serialize against in-flight senders).
func (c *Conn) die(err error) {
	if atomic.SwapInt32(&c.dead, 1) == 1 {
		return
	}
	c.setState(StateClosed)
	close(c.closedCh)

	c.dieMu.Lock()
	c.dieMu.Unlock()

	close(c.sendCh)
	c.netConn.Close()
	c.pending.drain(err)
}

// Close begins graceful teardown (§4.G "Graceful teardown"): stop
// accepting new operations and tear the socket down once outstanding
// work has drained or ctx is done, whichever comes first.
func (c *Conn) Close(ctx context.Context) error {
	c.setState(StateDraining)
	drained := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for c.pending.len() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
	}

	c.die(fmt.Errorf("kvconn: %w", kerr.RequestCancelled))
	c.wg.Wait()
	return nil
}

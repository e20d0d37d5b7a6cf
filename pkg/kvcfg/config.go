// Package kvcfg holds the client-level configuration a dispatcher or
// connection pool is built from: the §6 timeout table, DNS-SRV bootstrap
// settings, and the dialer/logger/credentials, assembled through the
// teacher's Opt-closure idiom (kgo.NewClient(opts ...Opt) mutating a
// private cfg struct) rather than a wide constructor.
package kvcfg

import (
	"context"
	"net"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kvlog"
)

// Timeouts holds the per-service timeout table from §6 "Environment /
// config".
type Timeouts struct {
	Bootstrap       time.Duration
	Connect         time.Duration
	KV              time.Duration
	KVDurable       time.Duration
	Query           time.Duration // shared by query/analytics/search/view/management
	DNSSRV          time.Duration
	TCPKeepAlive    time.Duration
	ConfigPoll      time.Duration
	ConfigPollFloor time.Duration
	IdleRedial      time.Duration
	IdleHTTP        time.Duration
}

// defaultTimeouts reproduces §6's table verbatim.
var defaultTimeouts = Timeouts{
	Bootstrap:       10 * time.Second,
	Connect:         10 * time.Second,
	KV:              2500 * time.Millisecond,
	KVDurable:       10 * time.Second,
	Query:           75 * time.Second,
	DNSSRV:          500 * time.Millisecond,
	TCPKeepAlive:    60 * time.Second,
	ConfigPoll:      2500 * time.Millisecond,
	ConfigPollFloor: 50 * time.Second,
	IdleRedial:      5 * time.Minute,
	IdleHTTP:        4500 * time.Millisecond,
}

// Dialer opens the underlying transport (§1(c): TLS/socket setup is an
// external collaborator; this is the consumed interface).
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// cfg is the private struct every Opt mutates, mirroring the teacher's
// kgo.cfg shape.
type cfg struct {
	Timeouts Timeouts

	Username string
	Password string
	Bucket   string

	UseAnySession bool // negated by dispatch.HTTPNodeSelector's sticky flag
	DNSSRVEnabled bool
	TLS           bool

	Dialer Dialer
	Logger kvlog.Logger

	ClientIDSuffix string
}

func defaultCfg() cfg {
	return cfg{
		Timeouts:      defaultTimeouts,
		UseAnySession: true,
		Logger:        kvlog.Nop{},
	}
}

// Opt mutates a client configuration; mirrors kgo.Opt in the teacher
// package.
type Opt interface {
	apply(*cfg)
}

type optFunc func(*cfg)

func (f optFunc) apply(c *cfg) { f(c) }

// WithCredentials sets the SASL username/password every dialed connection
// authenticates with.
func WithCredentials(username, password string) Opt {
	return optFunc(func(c *cfg) { c.Username, c.Password = username, password })
}

// WithBucket binds the configuration to a bucket, driving SELECT_BUCKET
// during connection handshake (§4.G).
func WithBucket(bucket string) Opt {
	return optFunc(func(c *cfg) { c.Bucket = bucket })
}

// WithTimeouts overrides the default §6 timeout table.
func WithTimeouts(t Timeouts) Opt {
	return optFunc(func(c *cfg) { c.Timeouts = t })
}

// WithDialer overrides the default net.Dialer-backed transport, e.g. to
// inject TLS (§1(c), out of core scope beyond this consumed interface).
func WithDialer(d Dialer) Opt {
	return optFunc(func(c *cfg) { c.Dialer = d })
}

// WithLogger installs a kvlog.Logger; see kvlog.Zap for the ambient
// default adapter. A nil logger is ignored.
func WithLogger(l kvlog.Logger) Opt {
	return optFunc(func(c *cfg) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithDNSSRV enables DNS-SRV bootstrap resolution (§6) instead of
// treating the configured host as a direct node address.
func WithDNSSRV(enabled bool) Opt {
	return optFunc(func(c *cfg) { c.DNSSRVEnabled = enabled })
}

// WithTLS marks the configuration TLS-enabled, selecting
// "_couchbases._tcp" over "_couchbase._tcp" for DNS-SRV (§6). Node port
// selection does not consult the SSL port columns in bucketcfg.NodePorts.
func WithTLS(enabled bool) Opt {
	return optFunc(func(c *cfg) { c.TLS = enabled })
}

// WithUseAnySession controls HTTP node-selection stickiness (§4.H):
// false prefers the last node used per service over round-robining.
func WithUseAnySession(any bool) Opt {
	return optFunc(func(c *cfg) { c.UseAnySession = any })
}

// WithClientIDSuffix appends extra text to the HELLO client identity
// string (§4.G "connection id + user agent"), e.g. an application name.
func WithClientIDSuffix(suffix string) Opt {
	return optFunc(func(c *cfg) { c.ClientIDSuffix = suffix })
}

// Config is the resolved, read-only configuration a set of Opts produces,
// consumed by the dispatcher, connection pool, and management client.
type Config struct {
	cfg
}

// New resolves opts into a Config, starting from the §6 default timeout
// table and a no-op logger.
func New(opts ...Opt) Config {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	return Config{cfg: c}
}

// Timeouts returns the resolved timeout table.
func (c Config) Timeouts() Timeouts { return c.cfg.Timeouts }

// Credentials returns the configured SASL username/password.
func (c Config) Credentials() (username, password string) {
	return c.cfg.Username, c.cfg.Password
}

// Bucket returns the configured bucket, or "" if unbound.
func (c Config) Bucket() string { return c.cfg.Bucket }

// UseAnySession reports whether HTTP node selection should round-robin
// freely rather than sticking to the last node used per service.
func (c Config) UseAnySession() bool { return c.cfg.UseAnySession }

// DNSSRVEnabled reports whether bootstrap should resolve the configured
// host via DNS-SRV rather than dialing it directly.
func (c Config) DNSSRVEnabled() bool { return c.cfg.DNSSRVEnabled }

// TLS reports whether connections should be established over TLS.
func (c Config) TLS() bool { return c.cfg.TLS }

// Logger returns the configured logger (never nil).
func (c Config) Logger() kvlog.Logger { return c.cfg.Logger }

// ClientIDSuffix returns the configured HELLO client-id suffix.
func (c Config) ClientIDSuffix() string { return c.cfg.ClientIDSuffix }

// Dial opens network/address using the configured Dialer, or a plain
// net.Dialer if none was set.
func (c Config) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if c.cfg.Dialer != nil {
		return c.cfg.Dialer(ctx, network, address)
	}
	d := net.Dialer{Timeout: c.cfg.Timeouts.Connect, KeepAlive: c.cfg.Timeouts.TCPKeepAlive}
	return d.DialContext(ctx, network, address)
}

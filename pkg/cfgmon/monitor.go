// Package cfgmon implements the configuration monitor (§4.F): a single
// serializing executor that fans pushed and polled cluster configurations
// out to global and bucket-scoped listeners, accepting only configurations
// whose revision strictly exceeds what's currently stored.
package cfgmon

import (
	"sort"
	"sync"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
)

// Listener receives accepted configurations.
type Listener func(bucketcfg.Config)

// Token identifies one subscription so it can later be unsubscribed.
// Tokens are monotonic and unsubscribing an absent token is a no-op
// (§4.F "Tokens are monotonic; unsubscribing an absent token is a
// no-op").
type Token uint64

type subscription struct {
	token    Token
	listener Listener
}

// Monitor is the configuration monitor: current-config store plus global
// and bucket-scoped listener fan-out, all serialized through one worker
// goroutine so exactly one callback runs at a time (§4.F "Single
// serializing executor").
type Monitor struct {
	work chan func()
	done chan struct{}

	mu            sync.Mutex
	nextToken     Token
	global        []subscription
	byBucket      map[string][]subscription
	current       bucketcfg.Config
	currentByName map[string]bucketcfg.Config
}

// New starts a Monitor's serializing executor goroutine.
func New() *Monitor {
	m := &Monitor{
		work:          make(chan func(), 256),
		done:          make(chan struct{}),
		byBucket:      make(map[string][]subscription),
		currentByName: make(map[string]bucketcfg.Config),
	}
	go m.run()
	return m
}

func (m *Monitor) run() {
	for {
		select {
		case fn := <-m.work:
			fn()
		case <-m.done:
			for {
				select {
				case fn := <-m.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Close stops the serializing executor. Pending work already queued is
// still drained; no new work should be submitted after Close returns.
func (m *Monitor) Close() { close(m.done) }

func (m *Monitor) nextTok() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextToken++
	return m.nextToken
}

// Subscribe registers a global listener, notified of every configuration
// push regardless of bucket (§4.F "Global listeners").
func (m *Monitor) Subscribe(l Listener) Token {
	tok := m.nextTok()
	m.mu.Lock()
	m.global = append(m.global, subscription{token: tok, listener: l})
	m.mu.Unlock()
	return tok
}

// SubscribeBucket registers a listener scoped to one bucket name (§4.F
// "Bucket-scoped listeners: keyed by bucket name").
func (m *Monitor) SubscribeBucket(bucket string, l Listener) Token {
	tok := m.nextTok()
	m.mu.Lock()
	m.byBucket[bucket] = append(m.byBucket[bucket], subscription{token: tok, listener: l})
	m.mu.Unlock()
	return tok
}

// Unsubscribe removes a global subscription by token.
func (m *Monitor) Unsubscribe(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = removeToken(m.global, tok)
}

// UnsubscribeBucket removes a bucket-scoped subscription by token.
func (m *Monitor) UnsubscribeBucket(bucket string, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byBucket[bucket] = removeToken(m.byBucket[bucket], tok)
}

func removeToken(subs []subscription, tok Token) []subscription {
	for i, s := range subs {
		if s.token == tok {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Post submits a global configuration for acceptance and fan-out,
// serialized through the monitor's single executor.
func (m *Monitor) Post(cfg bucketcfg.Config) {
	m.work <- func() { m.accept("", cfg) }
}

// PostBucket submits a bucket-scoped configuration.
func (m *Monitor) PostBucket(bucket string, cfg bucketcfg.Config) {
	m.work <- func() { m.accept(bucket, cfg) }
}

func (m *Monitor) accept(bucket string, cfg bucketcfg.Config) {
	m.mu.Lock()
	var prior bucketcfg.Config
	if bucket == "" {
		prior = m.current
	} else {
		prior = m.currentByName[bucket]
	}
	if !cfg.Revision.After(prior.Revision) {
		m.mu.Unlock()
		return
	}
	if bucket == "" {
		m.current = cfg
	} else {
		m.currentByName[bucket] = cfg
	}
	// Global and bucket-scoped listeners share one monotonic token
	// sequence (nextTok), so merging and sorting by token fires every
	// listener in its original subscription order regardless of which
	// call registered it (§8 "listeners fire in that order of
	// subscription").
	listeners := append([]subscription(nil), m.global...)
	if bucket != "" {
		listeners = append(listeners, m.byBucket[bucket]...)
	}
	sort.Slice(listeners, func(i, j int) bool { return listeners[i].token < listeners[j].token })
	m.mu.Unlock()

	for _, s := range listeners {
		s.listener(cfg)
	}
}

// Current returns the most recently accepted global configuration.
func (m *Monitor) Current() bucketcfg.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentBucket returns the most recently accepted configuration for bucket.
func (m *Monitor) CurrentBucket(bucket string) bucketcfg.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentByName[bucket]
}

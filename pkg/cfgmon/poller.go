package cfgmon

import (
	"context"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
)

// Fetcher issues a get_cluster_config request on the connection being
// polled and returns the decoded result (§4.F "poll via the client-request
// get_cluster_config").
type Fetcher interface {
	GetClusterConfig(ctx context.Context) (bucketcfg.Config, error)
}

// Poller drives interval-based get_cluster_config polling for one
// connection: a floor between consecutive polls, and an idle-redial
// timeout signalling the connection should be recycled if nothing has
// been heard from it in too long (§4.F "poll interval governed by
// config_poll_interval, with a minimum gap config_poll_floor ... and
// config_idle_redial_timeout").
type Poller struct {
	fetcher      Fetcher
	monitor      *Monitor
	bucket       string
	interval     time.Duration
	floor        time.Duration
	idleRedial   time.Duration
	lastPollAt   time.Time
	lastActivity time.Time
	now          func() time.Time
}

// NewPoller builds a Poller that posts successfully fetched configs to
// monitor (global if bucket == "", bucket-scoped otherwise).
func NewPoller(fetcher Fetcher, monitor *Monitor, bucket string, interval, floor, idleRedial time.Duration) *Poller {
	return &Poller{
		fetcher:    fetcher,
		monitor:    monitor,
		bucket:     bucket,
		interval:   interval,
		floor:      floor,
		idleRedial: idleRedial,
		now:        time.Now,
	}
}

// NoteActivity records that the connection just did something (sent or
// received a frame), resetting the idle-redial clock.
func (p *Poller) NoteActivity() { p.lastActivity = p.now() }

// ShouldRedial reports whether the connection has been idle longer than
// config_idle_redial_timeout and should be torn down and reconnected.
func (p *Poller) ShouldRedial() bool {
	if p.idleRedial <= 0 || p.lastActivity.IsZero() {
		return false
	}
	return p.now().Sub(p.lastActivity) >= p.idleRedial
}

// DueToPoll reports whether interval has elapsed since the last poll and
// the floor gap since the last poll has also elapsed.
func (p *Poller) DueToPoll() bool {
	if p.lastPollAt.IsZero() {
		return true
	}
	since := p.now().Sub(p.lastPollAt)
	return since >= p.interval && since >= p.floor
}

// Poll issues a get_cluster_config request if DueToPoll, and posts any
// successfully fetched configuration to the monitor.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.DueToPoll() {
		return nil
	}
	p.lastPollAt = p.now()
	cfg, err := p.fetcher.GetClusterConfig(ctx)
	if err != nil {
		return err
	}
	p.NoteActivity()
	if p.bucket == "" {
		p.monitor.Post(cfg)
	} else {
		p.monitor.PostBucket(p.bucket, cfg)
	}
	return nil
}

// Package collections implements the per-connection collection ID cache
// and resolver (§4.D): translating a "scope.collection" path to the
// numeric (manifest_uid, collection_uid) pair the wire protocol keys
// documents by, with concurrent resolutions for the same path coalesced.
package collections

import (
	"context"
	"errors"
	"sync"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
)

// Sender issues a get_collection_id request and waits for its response.
// kvconn's connection implements this; kept as a narrow interface here so
// collections has no dependency on the connection state machine.
type Sender interface {
	GetCollectionID(ctx context.Context, path string) (kmsg.GetCollectionIDResponse, error)
}

// entry is one resolved path's cached UID pair.
type entry struct {
	manifestUID   uint64
	collectionUID uint32
}

// inflight tracks the single resolution in progress for a path; any
// additional caller for the same path waits on done instead of sending a
// second request (§4.D "at-most-one in-flight resolve per path").
type inflight struct {
	done chan struct{}
	resp kmsg.GetCollectionIDResponse
	err  error
}

// Resolver caches resolved collection IDs for one connection.
type Resolver struct {
	sender Sender

	mu        sync.Mutex
	cache     map[string]entry
	inFlights map[string]*inflight
}

// New builds a Resolver that issues unresolved lookups through sender.
func New(sender Sender) *Resolver {
	return &Resolver{
		sender:    sender,
		cache:     make(map[string]entry),
		inFlights: make(map[string]*inflight),
	}
}

// Resolve returns the (manifest_uid, collection_uid) pair for path,
// serving from cache when possible and coalescing concurrent misses.
func (r *Resolver) Resolve(ctx context.Context, path string) (manifestUID uint64, collectionUID uint32, err error) {
	r.mu.Lock()
	if e, ok := r.cache[path]; ok {
		r.mu.Unlock()
		return e.manifestUID, e.collectionUID, nil
	}
	if fl, ok := r.inFlights[path]; ok {
		r.mu.Unlock()
		<-fl.done
		if fl.err != nil {
			return 0, 0, fl.err
		}
		return fl.resp.ManifestUID, fl.resp.CollectionUID, nil
	}

	fl := &inflight{done: make(chan struct{})}
	r.inFlights[path] = fl
	r.mu.Unlock()

	resp, err := r.sender.GetCollectionID(ctx, path)

	r.mu.Lock()
	fl.resp, fl.err = resp, err
	if err == nil {
		r.cache[path] = entry{manifestUID: resp.ManifestUID, collectionUID: resp.CollectionUID}
	}
	delete(r.inFlights, path)
	r.mu.Unlock()
	close(fl.done)

	if err != nil {
		return 0, 0, err
	}
	return resp.ManifestUID, resp.CollectionUID, nil
}

// Observe updates or invalidates the cache entry for path based on a
// response seen on the wire for an operation that used it: a manifest_uid
// newer than what's cached evicts the entry, and an
// unknown_collection status for a previously cached path evicts it so the
// next Resolve re-queries the server (§4.D "invalidated ... if the server
// returns unknown_collection for a previously cached entry").
func (r *Resolver) Observe(path string, manifestUID uint64, opErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, cached := r.cache[path]
	if cachedAsUnknown(opErr) {
		if cached {
			delete(r.cache, path)
		}
		return
	}
	if cached && manifestUID > e.manifestUID {
		delete(r.cache, path)
	}
}

func cachedAsUnknown(err error) bool {
	return err != nil && (errors.Is(err, kerr.CollectionNotFound) || errors.Is(err, kerr.ScopeNotFound))
}

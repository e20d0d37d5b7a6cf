package collections

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
)

type fakeSender struct {
	calls  int32
	resp   kmsg.GetCollectionIDResponse
	err    error
	gate   chan struct{} // closed to let GetCollectionID proceed, nil = no gate
}

func (f *fakeSender) GetCollectionID(ctx context.Context, path string) (kmsg.GetCollectionIDResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.resp, f.err
}

func TestResolveCachesResult(t *testing.T) {
	fs := &fakeSender{resp: kmsg.GetCollectionIDResponse{ManifestUID: 1, CollectionUID: 7}}
	r := New(fs)

	for i := 0; i < 3; i++ {
		mu, cu, err := r.Resolve(context.Background(), "scope.coll")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if mu != 1 || cu != 7 {
			t.Fatalf("got (%d,%d), want (1,7)", mu, cu)
		}
	}
	if got := atomic.LoadInt32(&fs.calls); got != 1 {
		t.Fatalf("sender called %d times, want 1 (cached)", got)
	}
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	fs := &fakeSender{
		resp: kmsg.GetCollectionIDResponse{ManifestUID: 1, CollectionUID: 9},
		gate: make(chan struct{}),
	}
	r := New(fs)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			mu, cu, err := r.Resolve(context.Background(), "scope.coll")
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			if mu != 1 || cu != 9 {
				t.Errorf("got (%d,%d), want (1,9)", mu, cu)
			}
		}()
	}
	close(fs.gate)
	wg.Wait()

	if got := atomic.LoadInt32(&fs.calls); got != 1 {
		t.Fatalf("sender called %d times, want 1 (coalesced)", got)
	}
}

func TestObserveEvictsOnUnknownCollection(t *testing.T) {
	fs := &fakeSender{resp: kmsg.GetCollectionIDResponse{ManifestUID: 1, CollectionUID: 7}}
	r := New(fs)

	if _, _, err := r.Resolve(context.Background(), "scope.coll"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r.Observe("scope.coll", 1, fmt.Errorf("wrapped: %w", kerr.CollectionNotFound))

	fs.resp = kmsg.GetCollectionIDResponse{ManifestUID: 2, CollectionUID: 8}
	mu, cu, err := r.Resolve(context.Background(), "scope.coll")
	if err != nil {
		t.Fatalf("Resolve after eviction: %v", err)
	}
	if mu != 2 || cu != 8 {
		t.Fatalf("got (%d,%d), want (2,8) after re-resolve", mu, cu)
	}
	if got := atomic.LoadInt32(&fs.calls); got != 2 {
		t.Fatalf("sender called %d times, want 2 (re-resolved after eviction)", got)
	}
}

func TestObserveEvictsOnNewerManifest(t *testing.T) {
	fs := &fakeSender{resp: kmsg.GetCollectionIDResponse{ManifestUID: 1, CollectionUID: 7}}
	r := New(fs)

	if _, _, err := r.Resolve(context.Background(), "scope.coll"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r.Observe("scope.coll", 2, nil)

	fs.resp = kmsg.GetCollectionIDResponse{ManifestUID: 2, CollectionUID: 11}
	mu, cu, err := r.Resolve(context.Background(), "scope.coll")
	if err != nil {
		t.Fatalf("Resolve after eviction: %v", err)
	}
	if mu != 2 || cu != 11 {
		t.Fatalf("got (%d,%d), want (2,11) after re-resolve", mu, cu)
	}
}

package kvconn

import (
	"context"
	"testing"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kvproto"
)

func handshakeOnly(_ kvproto.Header, _ []byte) (kvproto.Status, []byte) {
	return kvproto.StatusSuccess, nil
}

func clusterConfigHandler(hdr kvproto.Header, body []byte) (kvproto.Status, []byte) {
	switch kvproto.Opcode(hdr.Opcode) {
	case kvproto.OpGetClusterConfig:
		return kvproto.StatusSuccess, []byte(`{"rev":1,"revEpoch":0,"name":"default","nodesExt":[{"thisNode":true}]}`)
	default:
		return handshakeOnly(hdr, body)
	}
}

func TestPoolGetReusesConnection(t *testing.T) {
	dialer, _ := dialPipe(t, clusterConfigHandler)

	pool := NewPool(func(address string) Config {
		return Config{Address: address, Dialer: dialer}
	}, nil)
	defer pool.Close()

	c1, err := pool.Get(context.Background(), "fake:11210")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c2, err := pool.Get(context.Background(), "fake:11210")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c1 != c2 {
		t.Fatal("expected Get to return the cached connection on the second call")
	}
}

func TestPoolEvictClosesCachedConnection(t *testing.T) {
	dialer, _ := dialPipe(t, clusterConfigHandler)

	pool := NewPool(func(address string) Config {
		return Config{Address: address, Dialer: dialer}
	}, nil)
	defer pool.Close()

	c1, err := pool.Get(context.Background(), "fake:11210")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	pool.Evict("fake:11210")

	if c1.State() != StateClosed {
		t.Fatalf("state after evict = %v, want closed", c1.State())
	}
}

func TestPoolBackoffGrowsOnRepeatedFailure(t *testing.T) {
	pool := NewPool(func(address string) Config { return Config{Address: address} }, nil)

	slot := &poolSlot{failures: 3, lastFail: time.Now()}
	if wait := pool.backoffRemaining(slot); wait <= 0 {
		t.Fatalf("expected positive backoff immediately after a failure, got %v", wait)
	}

	slot.lastFail = time.Now().Add(-time.Hour)
	if wait := pool.backoffRemaining(slot); wait != 0 {
		t.Fatalf("expected zero backoff once the delay has elapsed, got %v", wait)
	}
}

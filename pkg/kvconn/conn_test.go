package kvconn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
	"github.com/couchbaselabs/kvcore/pkg/kvlog"
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
)

// fakeServer answers one frame with a canned status/body, echoing the
// request's opaque and opcode so Conn's correlation logic is exercised
// against a real net.Conn pipe rather than a mock.
type fakeServer struct {
	conn       net.Conn
	onRequest  func(hdr kvproto.Header, body []byte) (status kvproto.Status, body2 []byte)
	clusterCfg []byte
}

func dialPipe(t *testing.T, handle func(hdr kvproto.Header, body []byte) (kvproto.Status, []byte)) (Dialer, *fakeServer) {
	t.Helper()
	client, server := net.Pipe()
	fs := &fakeServer{conn: server, onRequest: handle}
	go fs.run()
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return client, nil
	}, fs
}

func (fs *fakeServer) run() {
	hdrBuf := make([]byte, 24)
	for {
		if _, err := readFull(fs.conn, hdrBuf); err != nil {
			return
		}
		bodyLen := binary.BigEndian.Uint32(hdrBuf[8:12])
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := readFull(fs.conn, body); err != nil {
				return
			}
		}
		opaque := binary.BigEndian.Uint32(hdrBuf[12:16])
		opcode := hdrBuf[1]
		status, respBody := fs.onRequest(kvproto.Header{Opcode: opcode, Opaque: opaque}, body)

		resp := make([]byte, 24+len(respBody))
		resp[0] = byte(kvproto.MagicClientResponse)
		resp[1] = opcode
		if kvproto.Opcode(opcode) == kvproto.OpGet && len(respBody) >= 4 {
			resp[4] = 4 // extras length: the GetResponse flags field
		}
		binary.BigEndian.PutUint16(resp[6:8], uint16(status))
		binary.BigEndian.PutUint32(resp[8:12], uint32(len(respBody)))
		binary.BigEndian.PutUint32(resp[12:16], opaque)
		copy(resp[24:], respBody)
		if _, err := fs.conn.Write(resp); err != nil {
			return
		}
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestDialNegotiatesHelloWithoutCredentials exercises the handshake path
// with no SASL and no bucket: HELLO then the initial config fetch only.
func TestDialNegotiatesHelloWithoutCredentials(t *testing.T) {
	dialer, _ := dialPipe(t, func(hdr kvproto.Header, body []byte) (kvproto.Status, []byte) {
		switch kvproto.Opcode(hdr.Opcode) {
		case kvproto.OpHello:
			return kvproto.StatusSuccess, helloFeatureBytes(kmsg.FeatureMutationSeqno, kmsg.FeatureCollections)
		case kvproto.OpGetClusterConfig:
			return kvproto.StatusSuccess, []byte(`{"rev":1,"revEpoch":0,"name":"default","nodesExt":[{"thisNode":true}]}`)
		default:
			return kvproto.StatusSuccess, nil
		}
	})

	conn, err := Dial(context.Background(), Config{Address: "fake:11210", Dialer: dialer})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(context.Background())

	if conn.State() != StateReady {
		t.Fatalf("state = %v, want ready", conn.State())
	}
	if !conn.Features().MutationSeqno || !conn.Features().Collections {
		t.Fatalf("negotiated features = %+v", conn.Features())
	}
}

// TestExecuteCorrelatesResponseByOpaque verifies a request gets back
// exactly its own matched response, not an unrelated one.
func TestExecuteCorrelatesResponseByOpaque(t *testing.T) {
	dialer, _ := dialPipe(t, func(hdr kvproto.Header, body []byte) (kvproto.Status, []byte) {
		switch kvproto.Opcode(hdr.Opcode) {
		case kvproto.OpHello:
			return kvproto.StatusSuccess, nil
		case kvproto.OpGetClusterConfig:
			return kvproto.StatusSuccess, []byte(`{"rev":1,"revEpoch":0,"name":"default","nodesExt":[{"thisNode":true}]}`)
		case kvproto.OpGet:
			return kvproto.StatusSuccess, append([]byte{0, 0, 0, 0}, []byte("value-for-A")...) // 4-byte flags extras + value
		default:
			return kvproto.StatusSuccess, nil
		}
	})

	conn, err := Dial(context.Background(), Config{Address: "fake:11210", Dialer: dialer})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(context.Background())

	resp, err := conn.Execute(context.Background(), 0, &kmsg.GetRequest{Key: []byte("k")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := resp.(*kmsg.GetResponse); !ok {
		t.Fatalf("response type = %T", resp)
	}
}

// TestExecuteRejectsOverCapacityQueue exercises the bounded-FIFO
// backpressure path (§5): once the queue capacity is exhausted, new
// callers fail fast with request_cancelled rather than blocking forever.
func TestExecuteRejectsOverCapacityQueue(t *testing.T) {
	block := make(chan struct{})
	dialer, _ := dialPipe(t, func(hdr kvproto.Header, body []byte) (kvproto.Status, []byte) {
		switch kvproto.Opcode(hdr.Opcode) {
		case kvproto.OpHello:
			return kvproto.StatusSuccess, nil
		case kvproto.OpGetClusterConfig:
			return kvproto.StatusSuccess, []byte(`{"rev":1,"revEpoch":0,"name":"default","nodesExt":[{"thisNode":true}]}`)
		case kvproto.OpGet:
			<-block
			return kvproto.StatusSuccess, nil
		default:
			return kvproto.StatusSuccess, nil
		}
	})

	conn, err := Dial(context.Background(), Config{
		Address:        "fake:11210",
		Dialer:         dialer,
		InFlightWindow: 1,
		QueueCapacity:  1,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { close(block); conn.Close(context.Background()) }()

	done := make(chan struct{})
	go func() {
		conn.Execute(context.Background(), 0, &kmsg.GetRequest{Key: []byte("k1")})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond) // let the first call occupy the only slot

	waiter := make(chan struct{})
	go func() {
		conn.Execute(context.Background(), 0, &kmsg.GetRequest{Key: []byte("k2")})
		close(waiter)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err = conn.Execute(context.Background(), 0, &kmsg.GetRequest{Key: []byte("k3")})
	if !errors.Is(err, kerr.RequestCancelled) {
		t.Fatalf("err = %v, want request_cancelled", err)
	}
}

// TestDieDrainsPendingOpsWithSocketClosed verifies teardown completes
// every outstanding op with socket_closed_while_in_flight instead of
// leaving callers blocked forever (§4.G "Graceful teardown", §7).
func TestDieDrainsPendingOpsWithSocketClosed(t *testing.T) {
	release := make(chan struct{})
	dialer, _ := dialPipe(t, func(hdr kvproto.Header, body []byte) (kvproto.Status, []byte) {
		switch kvproto.Opcode(hdr.Opcode) {
		case kvproto.OpHello:
			return kvproto.StatusSuccess, nil
		case kvproto.OpGetClusterConfig:
			return kvproto.StatusSuccess, []byte(`{"rev":1,"revEpoch":0,"name":"default","nodesExt":[{"thisNode":true}]}`)
		case kvproto.OpGet:
			<-release // never answer; force the caller to observe teardown
			return kvproto.StatusSuccess, nil
		default:
			return kvproto.StatusSuccess, nil
		}
	})

	conn, err := Dial(context.Background(), Config{Address: "fake:11210", Dialer: dialer})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Execute(context.Background(), 0, &kmsg.GetRequest{Key: []byte("k")})
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	conn.die(fmt.Errorf("kvconn: forced teardown: %w", kerr.SocketClosedWhileInFlight))
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, kerr.SocketClosedWhileInFlight) {
			t.Fatalf("err = %v, want socket_closed_while_in_flight after die()", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight call never unblocked after die()")
	}
}

// TestHandleFrameTreatsAuthContinueAsNonError verifies a SASL
// auth_continue status completes the pending op successfully rather
// than as a KeyValueContext error (§4.C).
func TestHandleFrameTreatsAuthContinueAsNonError(t *testing.T) {
	c := &Conn{pending: newPendingTable(), log: noopLogger{}}
	done := make(chan opResult, 1)
	opaque := c.pending.nextOpaque()
	c.pending.register(opaque, &pendingOp{
		complete: func(resp kmsg.Response, err error) { done <- opResult{resp, err} },
	})

	frame := &kvproto.Frame{
		Header: kvproto.Header{
			Magic:      kvproto.MagicClientResponse,
			Opcode:     uint8(kvproto.OpSaslStep),
			Opaque:     opaque,
			StatusCode: uint16(kvproto.StatusAuthContinue),
		},
		Value: []byte("r=challenge"),
	}
	c.handleFrame(frame)

	res := <-done
	if res.err != nil {
		t.Fatalf("auth_continue treated as error: %v", res.err)
	}
	step, ok := res.resp.(*kmsg.SaslStepResponse)
	if !ok {
		t.Fatalf("response type = %T", res.resp)
	}
	if string(step.Payload) != "r=challenge" {
		t.Fatalf("payload = %q", step.Payload)
	}
}

type noopLogger struct{}

func (noopLogger) Level() kvlog.Level                             { return kvlog.LevelNone }
func (noopLogger) Log(level kvlog.Level, msg string, keyvals ...any) {}

func helloFeatureBytes(features ...kmsg.HelloFeature) []byte {
	buf := make([]byte, len(features)*2)
	for i, f := range features {
		binary.BigEndian.PutUint16(buf[i*2:], uint16(f))
	}
	return buf
}

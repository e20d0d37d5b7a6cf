// Command kvclient is a minimal CLI exercising the core end to end:
// bootstrap (optionally via DNS-SRV), HELLO/SASL/SELECT_BUCKET handshake,
// configuration-monitor wiring, and a single KV operation dispatched
// through the retry orchestrator. Per spec §1(b) the public API/CLI
// surface is out of core scope; this is a thin driver, not a product.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/couchbaselabs/kvcore/internal/build"
	"github.com/couchbaselabs/kvcore/pkg/cfgmon"
	"github.com/couchbaselabs/kvcore/pkg/dispatch"
	"github.com/couchbaselabs/kvcore/pkg/dnssrv"
	"github.com/couchbaselabs/kvcore/pkg/kmsg"
	"github.com/couchbaselabs/kvcore/pkg/kvcfg"
	"github.com/couchbaselabs/kvcore/pkg/kvconn"
	"github.com/couchbaselabs/kvcore/pkg/kvlog"
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
	"github.com/couchbaselabs/kvcore/pkg/retry"
	"go.uber.org/zap"
)

func main() {
	var (
		host     = flag.String("host", "127.0.0.1:11210", "bootstrap node address (host:port)")
		bucket   = flag.String("bucket", "", "bucket to select")
		username = flag.String("username", "", "SASL username")
		password = flag.String("password", "", "SASL password")
		key      = flag.String("key", "", "document key to fetch")
		useSRV   = flag.Bool("dns-srv", false, "resolve -host via DNS-SRV before connecting")
		op       = flag.String("op", "get", "operation: get|upsert")
		value    = flag.String("value", "", "value to upsert (with -op upsert)")
	)
	flag.Parse()

	if err := run(*host, *bucket, *username, *password, *key, *value, *op, *useSRV); err != nil {
		fmt.Fprintln(os.Stderr, "kvclient:", err)
		os.Exit(1)
	}
}

func run(host, bucket, username, password, key, value, op string, useSRV bool) error {
	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer zl.Sync()
	logger := kvlog.NewZap(zl.Sugar(), kvlog.LevelInfo)

	cfg := kvcfg.New(
		kvcfg.WithCredentials(username, password),
		kvcfg.WithBucket(bucket),
		kvcfg.WithLogger(logger),
		kvcfg.WithDNSSRV(useSRV),
		kvcfg.WithClientIDSuffix(build.UserAgent()),
	)

	address := host
	if cfg.DNSSRVEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts().DNSSRV)
		defer cancel()
		targets, err := dnssrv.System().Bootstrap(ctx, host, cfg.TLS())
		if err != nil {
			return fmt.Errorf("dns-srv bootstrap: %w", err)
		}
		if len(targets) == 0 {
			return fmt.Errorf("dns-srv bootstrap: no targets for %s", host)
		}
		address = fmt.Sprintf("%s:%d", targets[0].Host, targets[0].Port)
	}

	monitor := cfgmon.New()
	defer monitor.Close()

	orch := retry.New(time.Now)
	disp := dispatch.New(func(ctx context.Context, addr string) (dispatch.Conn, error) {
		return dialConn(ctx, addr, cfg)
	}, orch, nil)

	monitor.Subscribe(disp.UpdateConfig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts().Bootstrap)
	defer cancel()
	bootstrapConn, err := dialConn(ctx, address, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap dial %s: %w", address, err)
	}
	initial, err := bootstrapConn.(*kvconn.Conn).GetClusterConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching initial configuration: %w", err)
	}
	disp.UpdateConfig(initial)
	if bucket != "" {
		monitor.PostBucket(bucket, initial)
	} else {
		monitor.Post(initial)
	}

	opCtx, opCancel := context.WithTimeout(context.Background(), cfg.Timeouts().KV)
	defer opCancel()

	cmd := &dispatch.Command{
		ID:         dispatch.DocumentID{Bucket: bucket, Key: []byte(key)},
		Idempotent: true,
		Strategy:   retry.BestEffort,
		Deadline:   time.Now().Add(cfg.Timeouts().KV),
	}

	switch op {
	case "get":
		cmd.NewRequest = func(k []byte) kmsg.Request { return &kmsg.GetRequest{Key: k} }
	case "upsert":
		cmd.NewRequest = func(k []byte) kmsg.Request {
			return &kmsg.MutationRequest{Op: kvproto.OpUpsert, Key: k, Value: []byte(value)}
		}
	default:
		return fmt.Errorf("unknown -op %q", op)
	}

	resp, err := disp.Dispatch(opCtx, cmd)
	if err != nil {
		return fmt.Errorf("dispatch %s %q: %w", op, key, err)
	}

	switch r := resp.(type) {
	case *kmsg.GetResponse:
		fmt.Printf("cas=%d value=%q\n", r.Cas, r.Value)
	case *kmsg.MutationResponse:
		fmt.Printf("cas=%d\n", r.Cas)
	default:
		fmt.Printf("%+v\n", r)
	}
	return nil
}

func dialConn(ctx context.Context, address string, cfg kvcfg.Config) (dispatch.Conn, error) {
	username, password := cfg.Credentials()
	var creds *kvconn.Credentials
	if username != "" {
		creds = &kvconn.Credentials{Username: username, Password: password}
	}
	return kvconn.Dial(ctx, kvconn.Config{
		Address:     address,
		Dialer:      kvconn.Dialer(cfg.Dial),
		ClientID:    build.UserAgent(),
		UserAgent:   cfg.ClientIDSuffix(),
		Bucket:      cfg.Bucket(),
		Credentials: creds,
		Logger:      cfg.Logger(),
	})
}

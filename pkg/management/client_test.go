package management

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

func cfgFor(t *testing.T, srv *httptest.Server) bucketcfg.Config {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return bucketcfg.Config{
		Nodes: []bucketcfg.Node{{Hostname: host, Ports: bucketcfg.NodePorts{Mgmt: port, FTS: port}}},
	}
}

func TestGetBucketSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools/default/buckets/travel-sample" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(BucketSettings{Name: "travel-sample", RAMQuotaMB: 256})
	}))
	defer srv.Close()

	c := New("user", "pass", false, true, time.Second)
	c.UpdateConfig(cfgFor(t, srv))

	got, err := c.GetBucket(context.Background(), "travel-sample")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "travel-sample" || got.RAMQuotaMB != 256 {
		t.Fatalf("got %+v", got)
	}
}

func TestGetBucketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	c := New("user", "pass", false, true, time.Second)
	c.UpdateConfig(cfgFor(t, srv))

	_, err := c.GetBucket(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected an error")
	}
	var httpErr *kerr.HTTPContext
	if !asHTTPContext(err, &httpErr) {
		t.Fatalf("expected *kerr.HTTPContext, got %T: %v", err, err)
	}
	if httpErr.Kind != kerr.BucketNotFound {
		t.Fatalf("kind = %v, want BucketNotFound", httpErr.Kind)
	}
}

func asHTTPContext(err error, target **kerr.HTTPContext) bool {
	if httpErr, ok := err.(*kerr.HTTPContext); ok {
		*target = httpErr
		return true
	}
	return false
}

// Package management implements the thin HTTP/JSON management
// operations (§6 "Wire (HTTP)"). Per §1(a) the dozens of concrete
// request bodies for bucket/scope/user/group/view/search-index/
// analytics CRUD are external collaborators, not engineering-interesting
// — this package exists only to exercise the dispatch.HTTPNodeSelector
// and kerr status-mapping path with a representative, minimal slice of
// those operations (bucket, RBAC user, and search-index CRUD).
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
	"github.com/couchbaselabs/kvcore/pkg/dispatch"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Client issues management REST calls against whichever node the
// embedded dispatch.HTTPNodeSelector picks for dispatch.ServiceMgmt (or
// another service, for the FTS/analytics operations below), using the
// most recently observed cluster configuration (§4.H "pick a node that
// exposes the required service").
type Client struct {
	http     *http.Client
	selector *dispatch.HTTPNodeSelector
	username string
	password string
	scheme   string

	mu  sync.RWMutex
	cfg bucketcfg.Config
}

// New returns a Client. useAnySession mirrors kvcfg.Config.UseAnySession:
// false makes the underlying selector sticky per service (§4.H "sticky
// preference if use_any_session is false").
func New(username, password string, tls, useAnySession bool, timeout time.Duration) *Client {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		selector: dispatch.NewHTTPNodeSelector(!useAnySession),
		username: username,
		password: password,
		scheme:   scheme,
	}
}

// UpdateConfig installs a new routing snapshot; wire this as a cfgmon
// listener alongside dispatch.Dispatcher.UpdateConfig so both components
// track the same configuration.
func (c *Client) UpdateConfig(cfg bucketcfg.Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Client) snapshot() bucketcfg.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// statusMap translates an HTTP status code to a logical error kind;
// codes absent from the map fall back to internal_server_failure.
type statusMap map[int]*kerr.Kind

func (m statusMap) kind(status int) *kerr.Kind {
	if k, ok := m[status]; ok {
		return k
	}
	return kerr.InternalServerFailure
}

// do issues method/path against a node exposing svc, JSON-encoding body
// (if non-nil) as the request payload and JSON-decoding a 2xx response
// into out (if non-nil). Non-2xx responses are returned as a populated
// *kerr.HTTPContext (§3 "Error context", §6 "status-code handling is
// per-operation").
func (c *Client) do(ctx context.Context, svc dispatch.Service, method, path string, body, out any, statuses statusMap) error {
	addr, err := c.selector.Select(c.snapshot(), svc)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("management: encoding %s %s body: %w", method, path, kerr.InvalidArgument)
		}
		reqBody = bytes.NewReader(encoded)
	}

	url := fmt.Sprintf("%s://%s%s", c.scheme, addr, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("management: %s %s: %w", method, path, kerr.ServiceNotAvailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode/100 != 2 {
		return &kerr.HTTPContext{
			Kind:       statuses.kind(resp.StatusCode),
			Method:     method,
			Path:       path,
			HTTPStatus: resp.StatusCode,
			HTTPBody:   string(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("management: decoding %s %s response: %w", method, path, kerr.ParsingFailure)
		}
	}
	return nil
}

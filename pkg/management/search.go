package management

import (
	"context"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/dispatch"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// SearchIndex is the subset of an FTS index definition this client
// round-trips (§6 "/api/index/{name}").
type SearchIndex struct {
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	SourceName string         `json:"sourceName,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

var searchStatuses = statusMap{
	400: kerr.InvalidArgument,
	404: kerr.IndexNotFound,
}

// GetSearchIndex fetches one FTS index definition.
func (c *Client) GetSearchIndex(ctx context.Context, name string) (SearchIndex, error) {
	var out SearchIndex
	err := c.do(ctx, dispatch.ServiceFTS, "GET", fmt.Sprintf("/api/index/%s", name), nil, &out, searchStatuses)
	return out, err
}

// UpsertSearchIndex creates or replaces an FTS index.
func (c *Client) UpsertSearchIndex(ctx context.Context, idx SearchIndex) error {
	return c.do(ctx, dispatch.ServiceFTS, "PUT", fmt.Sprintf("/api/index/%s", idx.Name), idx, nil, searchStatuses)
}

// DropSearchIndex deletes an FTS index.
func (c *Client) DropSearchIndex(ctx context.Context, name string) error {
	return c.do(ctx, dispatch.ServiceFTS, "DELETE", fmt.Sprintf("/api/index/%s", name), nil, nil, searchStatuses)
}

// AnalyticsLink is the subset of an analytics external-link definition
// this client round-trips (§6 "/analytics/link/{dataverse}/{name}").
type AnalyticsLink struct {
	Dataverse string
	Name      string
	Params    map[string]any
}

var analyticsStatuses = statusMap{
	400: kerr.InvalidArgument,
	404: kerr.InternalServerFailure,
}

// CreateAnalyticsLink creates an external analytics link.
func (c *Client) CreateAnalyticsLink(ctx context.Context, link AnalyticsLink) error {
	path := fmt.Sprintf("/analytics/link/%s/%s", link.Dataverse, link.Name)
	return c.do(ctx, dispatch.ServiceAnalytics, "POST", path, link.Params, nil, analyticsStatuses)
}

// DropAnalyticsLink deletes an external analytics link.
func (c *Client) DropAnalyticsLink(ctx context.Context, dataverse, name string) error {
	path := fmt.Sprintf("/analytics/link/%s/%s", dataverse, name)
	return c.do(ctx, dispatch.ServiceAnalytics, "DELETE", path, nil, nil, analyticsStatuses)
}

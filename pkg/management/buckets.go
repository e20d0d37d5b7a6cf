package management

import (
	"context"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/dispatch"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// BucketSettings is the subset of /pools/default/buckets/{name} fields
// this client round-trips (§1(a): full bucket CRUD bodies are out of
// core scope; this is the minimal shape exercising the dispatch/kerr
// path).
type BucketSettings struct {
	Name        string `json:"name"`
	BucketType  string `json:"bucketType,omitempty"`
	RAMQuotaMB  int    `json:"ramQuotaMB,omitempty"`
	NumReplicas int    `json:"replicaNumber,omitempty"`
}

var bucketStatuses = statusMap{
	400: kerr.InvalidArgument,
	404: kerr.BucketNotFound,
}

// GetBucket fetches a bucket's settings (§6 "bucket CRUD: 404 ->
// bucket_not_found, 400 -> argument/unsupported, 200 -> parse body").
func (c *Client) GetBucket(ctx context.Context, name string) (BucketSettings, error) {
	var out BucketSettings
	err := c.do(ctx, dispatch.ServiceMgmt, "GET", fmt.Sprintf("/pools/default/buckets/%s", name), nil, &out, bucketStatuses)
	return out, err
}

// CreateBucket creates a bucket per settings.
func (c *Client) CreateBucket(ctx context.Context, settings BucketSettings) error {
	return c.do(ctx, dispatch.ServiceMgmt, "POST", "/pools/default/buckets", settings, nil, bucketStatuses)
}

// UpdateBucket updates an existing bucket's settings.
func (c *Client) UpdateBucket(ctx context.Context, name string, settings BucketSettings) error {
	return c.do(ctx, dispatch.ServiceMgmt, "POST", fmt.Sprintf("/pools/default/buckets/%s", name), settings, nil, bucketStatuses)
}

// DropBucket deletes a bucket.
func (c *Client) DropBucket(ctx context.Context, name string) error {
	return c.do(ctx, dispatch.ServiceMgmt, "DELETE", fmt.Sprintf("/pools/default/buckets/%s", name), nil, nil, bucketStatuses)
}

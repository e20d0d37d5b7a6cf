package management

import (
	"context"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/dispatch"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Domain is the RBAC user domain (§6 "/settings/rbac/users/{domain}/{name}").
type Domain string

const (
	DomainLocal    Domain = "local"
	DomainExternal Domain = "external"
)

// Role is one RBAC role grant.
type Role struct {
	Name   string `json:"role"`
	Bucket string `json:"bucket_name,omitempty"`
}

// User is the subset of RBAC user fields this client manages.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Roles []Role `json:"roles,omitempty"`
}

var userStatuses = statusMap{
	400: kerr.InvalidArgument,
	404: kerr.InternalServerFailure, // §7 has no distinct "user_not_found" kind
}

// GetUser fetches one RBAC user.
func (c *Client) GetUser(ctx context.Context, domain Domain, name string) (User, error) {
	var out User
	err := c.do(ctx, dispatch.ServiceMgmt, "GET", fmt.Sprintf("/settings/rbac/users/%s/%s", domain, name), nil, &out, userStatuses)
	return out, err
}

// UpsertUser creates or replaces an RBAC user's role grants.
func (c *Client) UpsertUser(ctx context.Context, domain Domain, name string, roles []Role) error {
	body := struct {
		Roles []Role `json:"roles"`
	}{Roles: roles}
	return c.do(ctx, dispatch.ServiceMgmt, "PUT", fmt.Sprintf("/settings/rbac/users/%s/%s", domain, name), body, nil, userStatuses)
}

// DropUser deletes an RBAC user.
func (c *Client) DropUser(ctx context.Context, domain Domain, name string) error {
	return c.do(ctx, dispatch.ServiceMgmt, "DELETE", fmt.Sprintf("/settings/rbac/users/%s/%s", domain, name), nil, nil, userStatuses)
}

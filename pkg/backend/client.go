// Package backend talks to a tenant's own backend instance once its
// descriptor has been resolved.
package backend

import (
	"context"
	"errors"

	"tenantdash/pkg/tenants"
)

// ErrUnauthorized reports that the backend rejected the connection's
// credential. The registry drops the cached connection when it sees it.
var ErrUnauthorized = errors.New("backend rejected credentials")

// MembershipRow links a principal to a tenant. Role and Permissions are raw
// strings; the auth package parses them.
type MembershipRow struct {
	TenantID    string   `json:"tenant_id"`
	PrincipalID string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// TagMappingRow is one external tag vocabulary entry for a tenant.
type TagMappingRow struct {
	TenantID      string  `json:"tenant_id"`
	ExternalTag   string  `json:"external_tag"`
	InternalStage string  `json:"internal_stage"`
	DisplayLabel  string  `json:"display_label"`
	Description   *string `json:"description"`
	DisplayOrder  int     `json:"display_order"`
	Active        bool    `json:"active"`
}

// Client is an opened, authenticated handle to one tenant backend.
type Client interface {
	// Ping verifies reachability and credentials.
	Ping(ctx context.Context) error
	// Membership returns nil, nil when the principal has no membership row.
	Membership(ctx context.Context, tenantID, principalID string) (*MembershipRow, error)
	// TagMappings returns active rows ordered by display_order ascending.
	TagMappings(ctx context.Context, tenantID string) ([]TagMappingRow, error)
	Close()
}

// Dialer constructs and authenticates a Client for a descriptor.
type Dialer interface {
	Dial(ctx context.Context, d tenants.Descriptor) (Client, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, d tenants.Descriptor) (Client, error)

func (f DialerFunc) Dial(ctx context.Context, d tenants.Descriptor) (Client, error) { return f(ctx, d) }

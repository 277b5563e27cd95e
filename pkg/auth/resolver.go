package auth

import (
	"context"

	"go.uber.org/zap"

	"tenantdash/pkg/backend"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/metrics"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/registry"
)

// Connector is the slice of the connection registry the resolvers need.
type Connector interface {
	Resolve(ctx context.Context, key string) (*registry.Connection, error)
	ReportAuthFailure(key string, err error) bool
}

type Options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics
	// LoadMasterMembership also fetches the membership row for master
	// principals so it can be displayed; failures there are ignored.
	LoadMasterMembership bool
}

type Resolver struct {
	conns   Connector
	masters MasterList
	ident   identity.Provider
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	loadMM  bool
}

func NewResolver(conns Connector, masters MasterList, ident identity.Provider, opts Options) *Resolver {
	return &Resolver{
		conns:   conns,
		masters: masters,
		ident:   ident,
		log:     logger.OrNop(opts.Log),
		metrics: opts.Metrics,
		loadMM:  opts.LoadMasterMembership,
	}
}

// ResolveRole computes p's effective permissions in tenantKey. On any error
// the returned value grants nothing.
func (r *Resolver) ResolveRole(ctx context.Context, p identity.Principal, tenantKey string) (EffectivePermissions, error) {
	if r.masters.Contains(p.Email) {
		eff := masterPermissions()
		if r.loadMM {
			if m, err := r.membership(ctx, p, tenantKey); err == nil {
				eff.Membership = m
			}
		}
		r.metrics.PermissionResolve("master")
		return eff, nil
	}
	m, err := r.membership(ctx, p, tenantKey)
	if err != nil {
		r.metrics.PermissionResolve("error")
		return EffectivePermissions{}, err
	}
	eff := fromMembership(m)
	if m == nil {
		r.metrics.PermissionResolve("no_membership")
	} else {
		r.metrics.PermissionResolve(string(eff.Role))
	}
	return eff, nil
}

// ResolveCurrent asks the identity provider for the principal first. A signed
// out session resolves to no permissions without error.
func (r *Resolver) ResolveCurrent(ctx context.Context, tenantKey string) (EffectivePermissions, *identity.Principal, error) {
	if r.ident == nil {
		return EffectivePermissions{}, nil, problems.AuthUnavailable("principal", nil)
	}
	p, err := r.ident.CurrentPrincipal(ctx)
	if err != nil {
		if problems.KindOf(err) == problems.KindAuthUnavailable {
			return EffectivePermissions{}, nil, err
		}
		return EffectivePermissions{}, nil, problems.AuthUnavailable("principal", err)
	}
	if p == nil {
		return EffectivePermissions{}, nil, nil
	}
	eff, err := r.ResolveRole(ctx, *p, tenantKey)
	return eff, p, err
}

func (r *Resolver) membership(ctx context.Context, p identity.Principal, tenantKey string) (*Membership, error) {
	conn, err := r.conns.Resolve(ctx, tenantKey)
	if err != nil {
		return nil, problems.Load("membership", tenantKey, err)
	}
	row, err := conn.Client.Membership(ctx, conn.TenantKey, p.ID)
	if err != nil {
		if r.conns.ReportAuthFailure(conn.TenantKey, err) {
			r.log.Warnw("membership lookup rejected credentials; connection dropped", "tenant", conn.TenantKey)
		} else {
			r.log.Warnw("membership lookup failed", "tenant", conn.TenantKey, "err", err)
		}
		return nil, problems.Load("membership", conn.TenantKey, err)
	}
	if row == nil {
		return nil, nil
	}
	return r.parseMembership(row), nil
}

func (r *Resolver) parseMembership(row *backend.MembershipRow) *Membership {
	m := &Membership{TenantID: row.TenantID, PrincipalID: row.PrincipalID, Permissions: Set{}}
	if role, ok := ParseRole(row.Role); ok {
		m.Role = role
	} else if row.Role != "" {
		r.log.Warnw("membership has unknown role; no defaults applied", "tenant", row.TenantID, "role", row.Role)
	}
	for _, s := range row.Permissions {
		if p, ok := ParsePermission(s); ok {
			m.Permissions[p] = struct{}{}
		}
	}
	return m
}

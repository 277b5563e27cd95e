// Package session holds the active tenant and principal of one client
// session. Switching either one is a transaction boundary: results that were
// requested before the switch are discarded when they arrive.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/gate"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/metrics"
	"tenantdash/pkg/tags"
	"tenantdash/pkg/tenants"
)

// ErrStale is returned when a result was dropped because the active tenant
// or principal changed while it was being computed.
var ErrStale = errors.New("session: result discarded after tenant or principal change")

// ErrNoTenant is returned when no tenant has been selected.
var ErrNoTenant = errors.New("session: no active tenant")

type PermissionResolver interface {
	ResolveRole(ctx context.Context, p identity.Principal, tenantKey string) (auth.EffectivePermissions, error)
}

type MappingLoader interface {
	Table(ctx context.Context, key string) (*tags.Table, error)
	Clear()
}

// Clearer drops cached connections on sign-out.
type Clearer interface {
	Clear()
}

type Options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics
}

type Session struct {
	conns   Clearer
	perms   PermissionResolver
	tagsRes MappingLoader
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu        sync.Mutex
	tenant    string
	principal *identity.Principal
	epoch     uint64

	permLoaded bool
	eff        auth.EffectivePermissions
	permErr    error
	table      *tags.Table
	tableErr   error
}

func New(conns Clearer, perms PermissionResolver, tagsRes MappingLoader, opts Options) *Session {
	return &Session{
		conns:   conns,
		perms:   perms,
		tagsRes: tagsRes,
		log:     logger.OrNop(opts.Log),
		metrics: opts.Metrics,
	}
}

// resetLocked starts a new epoch; callers hold mu.
func (s *Session) resetLocked() {
	s.epoch++
	s.permLoaded = false
	s.eff = auth.EffectivePermissions{}
	s.permErr = nil
	s.table = nil
	s.tableErr = nil
}

// SwitchTenant makes key active. Permissions go back to pending until the
// next ResolvePermissions for the new tenant commits.
func (s *Session) SwitchTenant(key string) {
	k := tenants.NormalizeKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if k == s.tenant {
		return
	}
	s.tenant = k
	s.resetLocked()
}

// SetPrincipal replaces the signed in principal; nil signs out locally
// without clearing the shared caches.
func (s *Session) SetPrincipal(p *identity.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if samePrincipal(s.principal, p) {
		return
	}
	if p != nil {
		cp := *p
		p = &cp
	}
	s.principal = p
	s.resetLocked()
}

func samePrincipal(a, b *identity.Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SignOut forgets the principal and every cached connection, mapping table
// and permission set.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.principal = nil
	s.resetLocked()
	s.mu.Unlock()
	if s.conns != nil {
		s.conns.Clear()
	}
	if s.tagsRes != nil {
		s.tagsRes.Clear()
	}
	s.log.Infow("session signed out; caches cleared")
}

// Subscribe ties the session to identity lifecycle events.
func (s *Session) Subscribe(ev *identity.Events) {
	ev.Subscribe(func(e identity.Event, p *identity.Principal) {
		switch e {
		case identity.SignedOut:
			s.SignOut()
		case identity.SignedIn, identity.TokenRefreshed:
			s.SetPrincipal(p)
		}
	})
}

type snapshot struct {
	tenant    string
	principal *identity.Principal
	epoch     uint64
}

func (s *Session) capture() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{tenant: s.tenant, principal: s.principal, epoch: s.epoch}
}

// ResolvePermissions resolves the active principal's permissions in the
// active tenant and commits them unless the session moved on meanwhile, in
// which case ErrStale is returned and nothing changes. A resolution error is
// committed as an empty permission set.
func (s *Session) ResolvePermissions(ctx context.Context) error {
	snap := s.capture()
	if snap.tenant == "" {
		return ErrNoTenant
	}
	var (
		eff auth.EffectivePermissions
		err error
	)
	if snap.principal != nil {
		eff, err = s.perms.ResolveRole(ctx, *snap.principal, snap.tenant)
	}
	if err != nil {
		eff = auth.EffectivePermissions{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != snap.epoch {
		s.metrics.StaleDiscard("permissions")
		s.log.Debugw("discarding stale permissions", "tenant", snap.tenant, "active", s.tenant)
		return ErrStale
	}
	s.permLoaded = true
	s.eff = eff
	s.permErr = err
	return err
}

// LoadMappings loads the active tenant's tag table under the same discard
// rule as ResolvePermissions.
func (s *Session) LoadMappings(ctx context.Context) error {
	snap := s.capture()
	if snap.tenant == "" {
		return ErrNoTenant
	}
	t, err := s.tagsRes.Table(ctx, snap.tenant)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != snap.epoch {
		s.metrics.StaleDiscard("mappings")
		s.log.Debugw("discarding stale tag mappings", "tenant", snap.tenant, "active", s.tenant)
		return ErrStale
	}
	s.table = t
	s.tableErr = err
	return err
}

// Refresh runs both resolutions for the active tenant concurrently and
// returns the first error.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		wg            sync.WaitGroup
		permErr, tErr error
	)
	wg.Add(2)
	go func() { defer wg.Done(); permErr = s.ResolvePermissions(ctx) }()
	go func() { defer wg.Done(); tErr = s.LoadMappings(ctx) }()
	wg.Wait()
	if permErr != nil {
		return permErr
	}
	return tErr
}

// Tenant returns the active tenant key.
func (s *Session) Tenant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenant
}

func (s *Session) Principal() *identity.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// Permissions returns the committed permissions and whether they are loaded.
func (s *Session) Permissions() (auth.EffectivePermissions, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eff, s.permLoaded, s.permErr
}

func (s *Session) CanRender(req gate.Requirement) gate.Decision {
	s.mu.Lock()
	st := gate.State{Loaded: s.permLoaded, Permissions: s.eff}
	s.mu.Unlock()
	return gate.CanRender(st, req)
}

// StageOf uses the committed table; before it loads every tag is a new lead.
func (s *Session) StageOf(tag string) tags.Stage {
	s.mu.Lock()
	t := s.table
	s.mu.Unlock()
	return t.StageOf(tag)
}

func (s *Session) LabelOf(tag string) string {
	s.mu.Lock()
	t := s.table
	s.mu.Unlock()
	return t.LabelOf(tag)
}

func (s *Session) StagesByOrder() []tags.Stage {
	s.mu.Lock()
	t := s.table
	s.mu.Unlock()
	return t.StagesByOrder()
}

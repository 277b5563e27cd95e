// Package identity supplies the authenticated principal for a request or
// session and broadcasts session lifecycle events.
package identity

import (
	"context"
	"sync"
)

// Principal is the authenticated user; immutable for a session.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider returns the current principal, or nil when signed out. An error
// means the identity provider could not be reached.
type Provider interface {
	CurrentPrincipal(ctx context.Context) (*Principal, error)
}

type ctxPrincipalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey{}).(Principal)
	return p, ok
}

// ContextProvider reads the principal placed on the context by the JWT
// middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	if p, ok := PrincipalFrom(ctx); ok {
		return &p, nil
	}
	return nil, nil
}

type Event int

const (
	SignedIn Event = iota + 1
	SignedOut
	TokenRefreshed
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	}
	return "unknown"
}

// Events fans session lifecycle events out to subscribers synchronously, in
// subscription order.
type Events struct {
	mu   sync.RWMutex
	subs []func(Event, *Principal)
}

func (e *Events) Subscribe(fn func(Event, *Principal)) {
	e.mu.Lock()
	e.subs = append(e.subs, fn)
	e.mu.Unlock()
}

func (e *Events) Emit(ev Event, p *Principal) {
	e.mu.RLock()
	subs := append(([]func(Event, *Principal))(nil), e.subs...)
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(ev, p)
	}
}

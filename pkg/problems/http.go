package problems

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Problem is an RFC 7807 body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Tenant string `json:"tenant,omitempty"`
}

var byKind = map[Kind]struct {
	status int
	slug   string
	title  string
}{
	KindNotFound:         {http.StatusNotFound, "unknown-workspace", "Unknown workspace"},
	KindConnectionFailed: {http.StatusBadGateway, "backend-unreachable", "Workspace backend unreachable"},
	KindAuthUnavailable:  {http.StatusServiceUnavailable, "identity-unavailable", "Identity provider unavailable"},
	KindLoad:             {http.StatusBadGateway, "load-failed", "Workspace data could not be loaded"},
	KindInvalid:          {http.StatusBadRequest, "invalid-request", "Invalid request"},
	KindForbidden:        {http.StatusForbidden, "no-permission", "No permission"},
	KindUnauthenticated:  {http.StatusUnauthorized, "authentication-required", "Authentication required"},
}

// From maps err to a problem body. Errors without a kind become a 500. An
// unknown workspace anywhere in the chain renders as such even when a resolver
// wrapped it as a load failure.
func From(err error) Problem {
	var pe *Error
	kind := KindOf(err)
	if errors.Is(err, ErrNotFound) {
		kind = KindNotFound
	}
	m, ok := byKind[kind]
	if !ok {
		return Problem{Type: Type("internal"), Title: "Internal error", Status: http.StatusInternalServerError}
	}
	p := Problem{Type: Type(m.slug), Title: m.title, Status: m.status}
	if errors.As(err, &pe) {
		p.Tenant = pe.TenantKey
		if kind == KindInvalid && pe.Err != nil {
			p.Detail = pe.Err.Error()
		}
	}
	return p
}

// Write renders err as application/problem+json.
func Write(w http.ResponseWriter, err error) {
	p := From(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

package problems

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the tenant resolution layer. Callers branch on
// the kind, never on message text.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindConnectionFailed Kind = "connection_failed"
	KindAuthUnavailable  Kind = "auth_unavailable"
	KindLoad             Kind = "load_error"
	KindInvalid          Kind = "invalid_request"
	KindForbidden        Kind = "forbidden"
	KindUnauthenticated  Kind = "unauthenticated"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConnectionFailed = &Error{Kind: KindConnectionFailed}
	ErrAuthUnavailable  = &Error{Kind: KindAuthUnavailable}
	ErrLoad             = &Error{Kind: KindLoad}
	ErrInvalid          = &Error{Kind: KindInvalid}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
)

type Error struct {
	Kind      Kind
	TenantKey string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.TenantKey != "" {
		msg += fmt.Sprintf(" (tenant %q)", e.TenantKey)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped chains compare against
// the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.TenantKey == "" || t.TenantKey == e.TenantKey)
}

func New(kind Kind, op, tenantKey string, err error) *Error {
	return &Error{Kind: kind, Op: op, TenantKey: tenantKey, Err: err}
}

func NotFound(op, tenantKey string) *Error {
	return New(KindNotFound, op, tenantKey, nil)
}

func ConnectionFailed(op, tenantKey string, err error) *Error {
	return New(KindConnectionFailed, op, tenantKey, err)
}

func AuthUnavailable(op string, err error) *Error {
	return New(KindAuthUnavailable, op, "", err)
}

func Load(op, tenantKey string, err error) *Error {
	return New(KindLoad, op, tenantKey, err)
}

func Invalid(op, msg string) *Error {
	return New(KindInvalid, op, "", errors.New(msg))
}

func Forbidden(op, tenantKey string) *Error {
	return New(KindForbidden, op, tenantKey, nil)
}

func Unauthenticated(op string, err error) *Error {
	return New(KindUnauthenticated, op, "", err)
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

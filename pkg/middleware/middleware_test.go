package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/config"
	"tenantdash/pkg/gate"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/problems"
)

type verifierFunc func(ctx context.Context, raw string) (identity.Principal, error)

func (f verifierFunc) Verify(ctx context.Context, raw string) (identity.Principal, error) {
	return f(ctx, raw)
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := identity.PrincipalFrom(r.Context()); ok {
			w.Write([]byte(p.ID))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestAuthenticate(t *testing.T) {
	v := verifierFunc(func(ctx context.Context, raw string) (identity.Principal, error) {
		switch raw {
		case "good":
			return identity.Principal{ID: "u-1", Email: "a@example.com"}, nil
		case "idp-down":
			return identity.Principal{}, problems.AuthUnavailable("jwks", errors.New("timeout"))
		}
		return identity.Principal{}, identity.ErrInvalidToken
	})
	cases := []struct {
		name   string
		env    string
		devHdr bool
		hdr    map[string]string
		status int
		body   string
	}{
		{"valid bearer", "prod", false, map[string]string{"Authorization": "Bearer good"}, 200, "u-1"},
		{"invalid bearer", "prod", false, map[string]string{"Authorization": "Bearer bad"}, 401, ""},
		{"not bearer", "prod", false, map[string]string{"Authorization": "Basic xyz"}, 401, ""},
		{"idp unavailable", "prod", false, map[string]string{"Authorization": "Bearer idp-down"}, 503, ""},
		{"anonymous", "prod", false, nil, 200, "anonymous"},
		{"dev header", "dev", true, map[string]string{HeaderDevPrincipalID: "u-dev"}, 200, "u-dev"},
		{"dev header without opt-in", "dev", false, map[string]string{HeaderDevPrincipalID: "u-dev", HeaderDevPrincipalEmail: "root@ops.example"}, 200, "anonymous"},
		{"dev header ignored in prod", "prod", true, map[string]string{HeaderDevPrincipalID: "u-dev"}, 200, "anonymous"},
	}
	for _, tc := range cases {
		h := Authenticate(config.Config{Env: tc.env, DevPrincipalHeaders: tc.devHdr}, v, logger.Nop())(echoPrincipal())
		req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
		for k, val := range tc.hdr {
			req.Header.Set(k, val)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, rec.Code)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Fatalf("%s: unexpected body %q", tc.name, rec.Body.String())
		}
	}
}

type staticPerms struct {
	eff auth.EffectivePermissions
	err error
}

func (s staticPerms) ResolveCurrent(ctx context.Context, key string) (auth.EffectivePermissions, *identity.Principal, error) {
	return s.eff, nil, s.err
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	member := auth.EffectivePermissions{Role: auth.RoleMember, Permissions: auth.RoleDefaults(auth.RoleMember)}
	cases := []struct {
		name   string
		res    staticPerms
		req    gate.Requirement
		status int
	}{
		{"allowed", staticPerms{eff: member}, gate.Need(auth.PermQualificationManage), 204},
		{"denied", staticPerms{eff: member}, gate.Need(auth.PermSettingsUsers), 403},
		{"master", staticPerms{eff: auth.EffectivePermissions{MasterOverride: true}}, gate.Need(auth.PermSettingsEdit), 204},
		{"load failure", staticPerms{eff: member, err: problems.Load("membership", "sieg", errors.New("x"))}, gate.Need(auth.PermDashboardView), 502},
	}
	for _, tc := range cases {
		h := WithPermissions(tc.res)(RequirePermission(tc.req)(ok))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, rec.Code)
		}
	}

	// without WithPermissions the gate is pending and fails closed
	rec := httptest.NewRecorder()
	RequirePermission(gate.Requirement{})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without resolved permissions, got %d", rec.Code)
	}
}

func TestRequireMaster(t *testing.T) {
	masters := auth.NewMasterList([]string{"root@ops.example"}, false)
	h := RequireMaster(masters)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for email, want := range map[string]int{"root@ops.example": 200, "Root@ops.example": 403, "ana@x.example": 403} {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req = req.WithContext(identity.WithPrincipal(req.Context(), identity.Principal{ID: "u", Email: email}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("%s: expected %d got %d", email, want, rec.Code)
		}
	}
}

func TestRequestIDAndRecover(t *testing.T) {
	var seen string
	h := RequestID()(Recover(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "req-42" || rec.Header().Get("X-Request-Id") != "req-42" {
		t.Fatalf("request id not propagated: %q", seen)
	}
	if rec.Code != http.StatusInternalServerError || rec.Header().Get("Content-Type") != "application/problem+json" {
		t.Fatalf("unexpected panic response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a minted request id")
	}
}

func TestAccessLogCapturesStatus(t *testing.T) {
	h := AccessLog(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("second WriteHeader must be suppressed, got %d", rec.Code)
	}
}

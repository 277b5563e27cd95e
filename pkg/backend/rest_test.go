package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tenantdash/pkg/tenants"
)

func newBackend(t *testing.T, key string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("apikey") != key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/rest/v1/":
			w.WriteHeader(http.StatusOK)
		case "/rest/v1/tenant_members":
			if r.URL.Query().Get("user_id") != "eq.u1" {
				_ = json.NewEncoder(w).Encode([]MembershipRow{})
				return
			}
			_ = json.NewEncoder(w).Encode([]MembershipRow{{TenantID: "sieg", PrincipalID: "u1", Role: "member", Permissions: []string{"export.pdf"}}})
		case "/rest/v1/tag_mappings":
			if r.URL.Query().Get("active") != "eq.true" || r.URL.Query().Get("order") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode([]TagMappingRow{
				{TenantID: "sieg", ExternalTag: "T1 - NOVO", InternalStage: "novo_lead", DisplayLabel: "Novo", DisplayOrder: 1, Active: true},
				{TenantID: "sieg", ExternalTag: "T2 - QUALIFICANDO", InternalStage: "qualificando", DisplayLabel: "Qualificando", DisplayOrder: 2, Active: true},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRESTClientReadsRows(t *testing.T) {
	srv, _ := newBackend(t, "anon")
	c := NewRESTClient(tenants.Descriptor{TenantKey: "sieg", BaseURL: srv.URL + "/", PublicKey: "anon"}, time.Second)
	defer c.Close()
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	m, err := c.Membership(ctx, "sieg", "u1")
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if m == nil || m.Role != "member" || len(m.Permissions) != 1 {
		t.Fatalf("unexpected membership %+v", m)
	}
	none, err := c.Membership(ctx, "sieg", "u2")
	if err != nil || none != nil {
		t.Fatalf("expected no membership, got %+v %v", none, err)
	}
	rows, err := c.TagMappings(ctx, "sieg")
	if err != nil {
		t.Fatalf("mappings: %v", err)
	}
	if len(rows) != 2 || rows[1].ExternalTag != "T2 - QUALIFICANDO" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRESTClientUnauthorized(t *testing.T) {
	srv, _ := newBackend(t, "anon")
	c := NewRESTClient(tenants.Descriptor{TenantKey: "sieg", BaseURL: srv.URL, PublicKey: "wrong"}, time.Second)
	if err := c.Ping(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := c.Membership(context.Background(), "sieg", "u1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSchemeDialer(t *testing.T) {
	srv, hits := newBackend(t, "anon")
	d := SchemeDialer{Timeout: time.Second}
	c, err := d.Dial(context.Background(), tenants.Descriptor{TenantKey: "sieg", BaseURL: srv.URL, PublicKey: "anon"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("expected dial to authenticate with one ping, got %d requests", *hits)
	}

	if _, err := d.Dial(context.Background(), tenants.Descriptor{TenantKey: "sieg", BaseURL: srv.URL, PublicKey: "bad"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := d.Dial(context.Background(), tenants.Descriptor{TenantKey: "x", BaseURL: "ftp://nope"}); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
	if _, err := d.Dial(context.Background(), tenants.Descriptor{TenantKey: "x", BaseURL: ""}); err == nil {
		t.Fatal("expected invalid url error")
	}
}

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tenantdash/pkg/tenants"
)

// restClient reads rows from a PostgREST-style endpoint at
// <base>/rest/v1/<table>, presenting the public key as apikey and bearer.
type restClient struct {
	base string
	key  string
	http *http.Client
}

func NewRESTClient(d tenants.Descriptor, timeout time.Duration) Client {
	return &restClient{
		base: strings.TrimRight(d.BaseURL, "/"),
		key:  d.PublicKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *restClient) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/rest/v1/", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *restClient) Close() { c.http.CloseIdleConnections() }

func (c *restClient) Membership(ctx context.Context, tenantID, principalID string) (*MembershipRow, error) {
	q := url.Values{}
	q.Set("select", "tenant_id,user_id,role,permissions")
	q.Set("tenant_id", "eq."+tenantID)
	q.Set("user_id", "eq."+principalID)
	q.Set("limit", "1")
	var rows []MembershipRow
	if err := c.getJSON(ctx, "/rest/v1/tenant_members", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *restClient) TagMappings(ctx context.Context, tenantID string) ([]TagMappingRow, error) {
	q := url.Values{}
	q.Set("select", "tenant_id,external_tag,internal_stage,display_label,description,display_order,active")
	q.Set("tenant_id", "eq."+tenantID)
	q.Set("active", "eq.true")
	q.Set("order", "display_order.asc,external_tag.asc")
	var rows []TagMappingRow
	if err := c.getJSON(ctx, "/rest/v1/tag_mappings", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *restClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *restClient) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drain(resp)
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnauthorized, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		drain(resp)
		return nil, fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

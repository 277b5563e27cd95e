package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tenantdash/pkg/tenants"
)

// SchemeDialer picks the client implementation from the descriptor's base URL:
// postgres:// and postgresql:// open a pgx pool, http(s):// a REST client.
type SchemeDialer struct {
	Timeout time.Duration
	Log     *zap.SugaredLogger
}

func (s SchemeDialer) Dial(ctx context.Context, d tenants.Descriptor) (Client, error) {
	u, err := url.Parse(strings.TrimSpace(d.BaseURL))
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("invalid base url for tenant %s", d.TenantKey)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var c Client
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		c, err = NewPostgresClient(ctx, d, timeout)
	case "http", "https":
		c, err = NewRESTClient(d, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		c.Close()
		return nil, err
	}
	if s.Log != nil {
		s.Log.Debugw("tenant backend authenticated", "tenant", d.TenantKey, "scheme", u.Scheme)
	}
	return c, nil
}

package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"tenantdash/pkg/config"
	"tenantdash/pkg/problems"
)

// ErrInvalidToken is returned for malformed, expired or mis-signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// Verifier validates bearer tokens from the identity provider and turns them
// into principals.
type Verifier struct {
	issuer   string
	audience string
	jwksURL  string
	ttl      time.Duration
	skew     time.Duration
	cache    *jwksCache
}

func NewVerifier(cfg config.Config) *Verifier {
	ttl := cfg.JWKSTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Verifier{
		issuer:   strings.TrimRight(cfg.Issuer, "/"),
		audience: cfg.Audience,
		jwksURL:  cfg.JWKSURL,
		ttl:      ttl,
		skew:     cfg.ClockSkew,
		cache:    &jwksCache{},
	}
}

// Configured reports whether issuer and JWKS are set.
func (v *Verifier) Configured() bool { return v.issuer != "" && v.jwksURL != "" }

// Verify parses raw. A JWKS fetch failure is an AuthUnavailable problem; any
// token defect is ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, raw string) (Principal, error) {
	if !v.Configured() {
		return Principal{}, problems.AuthUnavailable("verify", errors.New("identity provider not configured"))
	}
	set, err := v.cache.get(ctx, v.jwksURL, v.ttl)
	if err != nil {
		return Principal{}, problems.AuthUnavailable("jwks", err)
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set), jwt.WithIssuer(v.issuer), jwt.WithValidate(true),
		jwt.WithVerify(true), jwt.WithAcceptableSkew(v.skew),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	jt, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	p := Principal{ID: jt.Subject()}
	if e, ok := jt.Get("email"); ok {
		p.Email, _ = e.(string)
	}
	if p.ID == "" {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authz[len("Bearer "):])
	return tok, tok != ""
}

// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Bootstrap backend holding tenant connection descriptors
	DatabaseURL    string
	TenantSeedJSON string
	TenantSeedFile string

	// Push invalidation
	RedisURL            string
	InvalidationChannel string

	// Master override allow-list; immutable once loaded
	MasterEmails         []string
	MasterEmailsFoldCase bool

	// Identity provider (OIDC / JWT)
	Issuer    string
	Audience  string
	JWKSURL   string
	JWKSTTL   time.Duration
	ClockSkew time.Duration

	// Tenant backends
	BackendTimeout time.Duration
	ConnectionTTL  time.Duration // 0 keeps connections for the process lifetime

	CORSOrigins    []string
	WebhookTagPath string

	// DevPrincipalHeaders accepts X-Dev-Principal-* headers in place of a
	// token; honored only when Env is dev.
	DevPrincipalHeaders bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                  env("APP_ENV", "dev"),
		HTTPAddr:             env("HTTP_ADDR", ":8080"),
		DatabaseURL:          env("DATABASE_URL", ""),
		TenantSeedJSON:       env("TENANT_SEED_JSON", ""),
		TenantSeedFile:       env("TENANT_SEED_FILE", ""),
		RedisURL:             env("REDIS_URL", ""),
		InvalidationChannel:  env("INVALIDATION_CHANNEL", "tenantdash:invalidate"),
		MasterEmails:         envList("MASTER_EMAILS", nil),
		MasterEmailsFoldCase: envBool("MASTER_EMAILS_CASE_INSENSITIVE", false),
		Issuer:               env("OIDC_ISSUER", ""),
		Audience:             env("OIDC_AUDIENCE", "tenantdash"),
		JWKSURL:              env("JWKS_URL", ""),
		JWKSTTL:              envDur("JWKS_TTL_SEC", 6*60*60) * time.Second,
		ClockSkew:            envDur("JWT_CLOCK_SKEW_SEC", 60) * time.Second,
		BackendTimeout:       envDur("BACKEND_TIMEOUT_SEC", 10) * time.Second,
		ConnectionTTL:        envDur("CONNECTION_TTL_SEC", 0) * time.Second,
		CORSOrigins:          envList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		WebhookTagPath:       env("WEBHOOK_TAG_PATH", "tag"),
		DevPrincipalHeaders:  envBool("DEV_PRINCIPAL_HEADERS", false),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory descriptor store for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}

// envList splits a comma separated value, dropping blanks.
func envList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

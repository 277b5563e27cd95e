package tenants

import "strings"

// Descriptor is the metadata needed to reach a tenant's backend.
//
// BaseURL is either a postgres:// DSN or an https:// REST endpoint; PublicKey
// is the public credential presented to that backend.
type Descriptor struct {
	TenantKey   string `json:"tenant_key" yaml:"tenant_key"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
	PublicKey   string `json:"public_key" yaml:"public_key"`
	Active      bool   `json:"active" yaml:"active"`
}

// NormalizeKey is the canonical form used for case-insensitive lookups.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

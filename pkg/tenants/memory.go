// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrDescriptorNotFound is returned when no active descriptor matches a key.
var ErrDescriptorNotFound = errors.New("descriptor not found")

type memStore struct {
	log   *zap.SugaredLogger
	mu    sync.RWMutex
	byKey map[string]Descriptor // key: NormalizeKey(TenantKey); active rows only
}

// MemoryStore is the dev/test descriptor store. Upsert stands in for the
// administrative workflow that edits descriptors.
type MemoryStore interface {
	Store
	Upsert(d Descriptor)
}

func NewMemoryStore(log *zap.SugaredLogger, descs ...Descriptor) MemoryStore {
	s := &memStore{log: log, byKey: map[string]Descriptor{}}
	for _, d := range descs {
		s.add(d)
	}
	return s
}

// NewMemoryStoreFromEnv seeds from TENANT_SEED_JSON, else from the YAML file
// named by TENANT_SEED_FILE, else a single local dev tenant.
func NewMemoryStoreFromEnv(log *zap.SugaredLogger) (MemoryStore, error) {
	if seed := os.Getenv("TENANT_SEED_JSON"); seed != "" {
		var entries []Descriptor
		if err := json.Unmarshal([]byte(seed), &entries); err != nil {
			return nil, fmt.Errorf("parse TENANT_SEED_JSON: %w", err)
		}
		return NewMemoryStore(log, entries...), nil
	}
	if path := os.Getenv("TENANT_SEED_FILE"); path != "" {
		entries, err := LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(log, entries...), nil
	}
	return NewMemoryStore(log, Descriptor{
		TenantKey: "dev", DisplayName: "Local development",
		BaseURL: os.Getenv("DEV_TENANT_URL"), PublicKey: os.Getenv("DEV_TENANT_KEY"), Active: true,
	}), nil
}

// LoadSeedFile reads a YAML list of descriptors:
//
//	tenants:
//	  - tenant_key: sieg
//	    display_name: Sieg
//	    base_url: https://sieg.backend.example.com
//	    public_key: anon-key
//	    active: true
func LoadSeedFile(path string) ([]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc struct {
		Tenants []Descriptor `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return doc.Tenants, nil
}

func (m *memStore) add(d Descriptor) {
	if !d.Active {
		return
	}
	k := NormalizeKey(d.TenantKey)
	if k == "" {
		return
	}
	if _, dup := m.byKey[k]; dup {
		// one active descriptor per key; the first seeded row wins
		if m.log != nil {
			m.log.Warnw("duplicate active descriptor ignored", "tenant", k)
		}
		return
	}
	m.byKey[k] = d
}

func (m *memStore) Upsert(d Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := NormalizeKey(d.TenantKey)
	if !d.Active {
		delete(m.byKey, k)
		return
	}
	m.byKey[k] = d
}

func (m *memStore) ActiveDescriptor(ctx context.Context, key string) (Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.byKey[NormalizeKey(key)]; ok {
		return d, nil
	}
	return Descriptor{}, ErrDescriptorNotFound
}

func (m *memStore) ListActive(ctx context.Context) ([]Descriptor, error) {
	m.mu.RLock()
	out := make([]Descriptor, 0, len(m.byKey))
	for _, d := range m.byKey {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].TenantKey < out[j].TenantKey
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

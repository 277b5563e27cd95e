package tenants

import (
	"context"
)

// Store reads connection descriptors from the bootstrap backend. It never writes.
type Store interface {
	// ActiveDescriptor returns the active descriptor for key (case-insensitive).
	// ErrDescriptorNotFound when no active row matches.
	ActiveDescriptor(ctx context.Context, key string) (Descriptor, error)
	// ListActive returns every active descriptor ordered by display name.
	ListActive(ctx context.Context) ([]Descriptor, error)
}

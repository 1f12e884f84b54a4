// Package provider defines the port interface for the external sandbox
// compute provider.
package provider

import (
	"context"

	"github.com/bartonmalow/suna/internal/domain/sandbox"
)

// SandboxProvider lists and deletes live sandboxes. The provider is the
// source of truth for which sandboxes exist; the record store only holds
// references to them.
type SandboxProvider interface {
	// List returns every sandbox currently known to the provider.
	List(ctx context.Context) ([]sandbox.Sandbox, error)

	// Delete removes a sandbox. Deleting an id the provider no longer
	// knows is success, not an error.
	Delete(ctx context.Context, id string) error
}

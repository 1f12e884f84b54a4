package natskv

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/bartonmalow/suna/internal/port/runregistry"
)

// Registry implements runregistry.Registry over a KV bucket of ephemeral
// "active.{instance}.{run}" markers. Worker instances own their markers;
// this adapter only reads them.
type Registry struct {
	kv jetstream.KeyValue
}

// NewRegistry creates a run registry backed by the given KV bucket.
func NewRegistry(kv jetstream.KeyValue) *Registry {
	return &Registry{kv: kv}
}

// ScanActive returns the raw keys of every instance marker for the run.
func (r *Registry) ScanActive(ctx context.Context, runID string) ([]string, error) {
	lister, err := r.kv.ListKeysFiltered(ctx, runregistry.ActiveKeyFilter(runID))
	if err != nil {
		return nil, fmt.Errorf("scan active instances for run %s: %w", runID, err)
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

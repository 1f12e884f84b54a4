// Package runbuffer defines the port interface for the per-run response
// buffer: an ordered, append-only event log that holds a run's in-flight
// output until it is persisted to the record store.
package runbuffer

import (
	"context"

	"github.com/bartonmalow/suna/internal/domain/run"
)

// Buffer is the write-ahead log for a run's output. The buffer is the only
// durable copy of in-flight responses until they are persisted, so Delete
// must never be called before the persistence write succeeds.
type Buffer interface {
	// ReadAll returns the run's buffered responses in append order.
	// A run with no buffer yields an empty result, not an error.
	ReadAll(ctx context.Context, runID string) ([]run.Response, error)

	// Append adds one response to the end of the run's buffer.
	Append(ctx context.Context, runID string, resp run.Response) error

	// Delete discards the run's buffer. Deleting an absent buffer is a
	// no-op.
	Delete(ctx context.Context, runID string) error
}

// Package natskv implements the response buffer and run registry ports
// using NATS JetStream KeyValue buckets.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/bartonmalow/suna/internal/domain/run"
)

// appendAttempts bounds the optimistic-revision retry loop in Append.
const appendAttempts = 5

// Buffer implements runbuffer.Buffer. Each run maps to one KV key holding
// the ordered JSON array of its responses; appends use the entry revision
// for optimistic concurrency.
type Buffer struct {
	kv jetstream.KeyValue
}

// NewBuffer creates a response buffer backed by the given KV bucket.
func NewBuffer(kv jetstream.KeyValue) *Buffer {
	return &Buffer{kv: kv}
}

// ReadAll returns the run's buffered responses in append order. A run with
// no buffer yields an empty result.
func (b *Buffer) ReadAll(ctx context.Context, runID string) ([]run.Response, error) {
	entry, err := b.kv.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read response buffer %s: %w", runID, err)
	}

	var responses []run.Response
	if err := json.Unmarshal(entry.Value(), &responses); err != nil {
		return nil, fmt.Errorf("decode response buffer %s: %w", runID, err)
	}
	return responses, nil
}

// Append adds one response to the end of the run's buffer. Concurrent
// appenders are reconciled through revision-checked updates.
func (b *Buffer) Append(ctx context.Context, runID string, resp run.Response) error {
	var lastErr error
	for range appendAttempts {
		entry, err := b.kv.Get(ctx, runID)
		if err != nil {
			if !errors.Is(err, jetstream.ErrKeyNotFound) {
				return fmt.Errorf("append to response buffer %s: %w", runID, err)
			}
			data, err := json.Marshal([]run.Response{resp})
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			if _, err = b.kv.Create(ctx, runID, data); err == nil {
				return nil
			}
			// Lost the create race; retry as an update.
			lastErr = err
			continue
		}

		var responses []run.Response
		if err := json.Unmarshal(entry.Value(), &responses); err != nil {
			return fmt.Errorf("decode response buffer %s: %w", runID, err)
		}
		responses = append(responses, resp)
		data, err := json.Marshal(responses)
		if err != nil {
			return fmt.Errorf("encode responses: %w", err)
		}
		if _, err = b.kv.Update(ctx, runID, data, entry.Revision()); err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("append to response buffer %s: %w", runID, lastErr)
}

// Delete discards the run's buffer. Deleting an absent buffer is a no-op.
func (b *Buffer) Delete(ctx context.Context, runID string) error {
	err := b.kv.Purge(ctx, runID)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete response buffer %s: %w", runID, err)
	}
	return nil
}

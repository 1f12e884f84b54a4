package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bartonmalow/suna/internal/adapter/otel"
	"github.com/bartonmalow/suna/internal/port/provider"
)

// DefaultMaxSandboxAge is the expiry threshold used when none is given.
const DefaultMaxSandboxAge = 24 * time.Hour

// ExpirySweeper deletes sandboxes older than a configured age.
type ExpirySweeper struct {
	provider provider.SandboxProvider
	metrics  *otel.Metrics
	now      func() time.Time
}

// NewExpirySweeper creates an ExpirySweeper. metrics may be nil.
func NewExpirySweeper(prov provider.SandboxProvider, metrics *otel.Metrics) *ExpirySweeper {
	return &ExpirySweeper{provider: prov, metrics: metrics, now: time.Now}
}

// Sweep deletes every sandbox strictly older than maxAge and returns the
// ids deleted. A sandbox whose age exactly equals the threshold is
// retained. Unparseable provider timestamps are skipped, and a failed
// delete is logged without aborting the rest of the pass.
func (s *ExpirySweeper) Sweep(ctx context.Context, maxAge time.Duration) ([]string, error) {
	sandboxes, err := s.provider.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("expiry sweep: %w", err)
	}

	now := s.now()
	var old []string
	for _, sb := range sandboxes {
		age, err := sb.Age(now)
		if err != nil {
			slog.Warn("skipping sandbox with unparseable timestamp",
				"sandbox_id", sb.ID, "created_at", sb.CreatedAt, "error", err)
			continue
		}
		if age > maxAge {
			old = append(old, sb.ID)
		}
	}

	if len(old) == 0 {
		slog.Info("no sandboxes past the age threshold", "max_age", maxAge)
		return nil, nil
	}
	slog.Info("found sandboxes past the age threshold", "count", len(old), "max_age", maxAge)

	var deleted []string
	for _, id := range old {
		if err := s.provider.Delete(ctx, id); err != nil {
			slog.Error("failed to delete old sandbox", "sandbox_id", id, "error", err)
			continue
		}
		deleted = append(deleted, id)
		slog.Info("deleted old sandbox", "sandbox_id", id)
		if s.metrics != nil {
			s.metrics.ExpiredDeleted.Add(ctx, 1)
		}
	}
	return deleted, nil
}

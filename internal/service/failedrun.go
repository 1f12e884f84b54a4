package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bartonmalow/suna/internal/adapter/otel"
	"github.com/bartonmalow/suna/internal/port/database"
	"github.com/bartonmalow/suna/internal/port/provider"
)

// DefaultFailedRunLookback is how far back the failed-run sweep scans when
// no window is given.
const DefaultFailedRunLookback = 24 * time.Hour

// FailedRunSweeper deletes sandboxes left behind by agent runs that ended
// in failure.
type FailedRunSweeper struct {
	store    database.Store
	provider provider.SandboxProvider
	metrics  *otel.Metrics
	now      func() time.Time
}

// NewFailedRunSweeper creates a FailedRunSweeper. metrics may be nil.
func NewFailedRunSweeper(store database.Store, prov provider.SandboxProvider, metrics *otel.Metrics) *FailedRunSweeper {
	return &FailedRunSweeper{store: store, provider: prov, metrics: metrics, now: time.Now}
}

// Sweep resolves the project of every run that failed within the lookback
// window and, when the project still holds a sandbox reference, deletes
// the sandbox and clears the reference. The reference is only cleared
// after a successful provider delete. Per-run failures are logged and
// skipped.
func (s *FailedRunSweeper) Sweep(ctx context.Context, lookback time.Duration) (int, error) {
	since := s.now().Add(-lookback)
	failed, err := s.store.ListFailedRunsSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed-run sweep: %w", err)
	}

	if len(failed) == 0 {
		slog.Info("no recent failed agent runs found", "lookback", lookback)
		return 0, nil
	}

	deleted := 0
	for _, r := range failed {
		p, err := s.store.GetProject(ctx, r.ProjectID)
		if err != nil {
			slog.Error("failed-run sweep: resolve project",
				"run_id", r.ID, "project_id", r.ProjectID, "error", err)
			continue
		}
		if p.SandboxRef == nil {
			continue
		}

		slog.Info("cleaning up sandbox from failed run",
			"sandbox_id", p.SandboxRef.ID, "run_id", r.ID)
		if err := s.provider.Delete(ctx, p.SandboxRef.ID); err != nil {
			slog.Error("failed-run sweep: delete sandbox",
				"sandbox_id", p.SandboxRef.ID, "run_id", r.ID, "error", err)
			continue
		}
		if err := s.store.UpdateProjectSandboxRef(ctx, r.ProjectID, nil); err != nil {
			slog.Error("failed-run sweep: clear sandbox ref",
				"project_id", r.ProjectID, "error", err)
			continue
		}

		deleted++
		if s.metrics != nil {
			s.metrics.FailedRunDeleted.Add(ctx, 1)
		}
	}

	slog.Info("failed-run sweep completed", "deleted", deleted)
	return deleted, nil
}

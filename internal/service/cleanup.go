// Package service implements the sandbox lifecycle use-cases: reconciliation
// between the record store and the compute provider, age and failed-run
// sweeps, and the run cancellation protocol.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bartonmalow/suna/internal/adapter/otel"
	"github.com/bartonmalow/suna/internal/domain/sandbox"
	"github.com/bartonmalow/suna/internal/port/cache"
	"github.com/bartonmalow/suna/internal/port/database"
	"github.com/bartonmalow/suna/internal/port/provider"
)

// Count-map keys reported by FullCleanup.
const (
	CategoryOrphaned  = "orphaned_sandboxes"
	CategoryOld       = "old_sandboxes"
	CategoryFailedRun = "failed_run_sandboxes"
	CategoryStaleRefs = "stale_project_refs"
)

const statsCacheKey = "cleanup:stats"

// CleanupService reconciles the record store's sandbox references with the
// provider's live sandbox set. Every mutation it performs is idempotent, so
// concurrent passes (scheduled and on-demand) converge to the same state.
type CleanupService struct {
	store    database.Store
	provider provider.SandboxProvider
	expiry   *ExpirySweeper
	failed   *FailedRunSweeper

	statsCache cache.Cache
	statsTTL   time.Duration
	metrics    *otel.Metrics
	now        func() time.Time

	// Thresholds used by FullCleanup. Set before the service is shared.
	MaxSandboxAge     time.Duration
	FailedRunLookback time.Duration
}

// NewCleanupService creates a CleanupService. statsCache and metrics may be
// nil; caching and instrumentation are then skipped.
func NewCleanupService(
	store database.Store,
	prov provider.SandboxProvider,
	expiry *ExpirySweeper,
	failed *FailedRunSweeper,
	statsCache cache.Cache,
	statsTTL time.Duration,
	metrics *otel.Metrics,
) *CleanupService {
	return &CleanupService{
		store:      store,
		provider:   prov,
		expiry:     expiry,
		failed:     failed,
		statsCache: statsCache,
		statsTTL:   statsTTL,
		metrics:    metrics,
		now:        time.Now,

		MaxSandboxAge:     DefaultMaxSandboxAge,
		FailedRunLookback: DefaultFailedRunLookback,
	}
}

// DiffOrphans returns the provider ids with no record-store reference.
func (s *CleanupService) DiffOrphans(providerIDs []string, dbIDs map[string]string) []string {
	var orphans []string
	for _, id := range providerIDs {
		if _, ok := dbIDs[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// DiffStale returns the record-store sandbox ids that no longer exist at
// the provider.
func (s *CleanupService) DiffStale(dbIDs map[string]string, providerIDs []string) []string {
	live := make(map[string]struct{}, len(providerIDs))
	for _, id := range providerIDs {
		live[id] = struct{}{}
	}
	var stale []string
	for id := range dbIDs {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

// RemediateOrphans deletes each orphaned sandbox from the provider and
// returns the success count. A failed delete is logged and skipped.
func (s *CleanupService) RemediateOrphans(ctx context.Context, orphanIDs []string) int {
	deleted := 0
	for _, id := range orphanIDs {
		if err := s.provider.Delete(ctx, id); err != nil {
			slog.Error("failed to delete orphaned sandbox", "sandbox_id", id, "error", err)
			continue
		}
		deleted++
		if s.metrics != nil {
			s.metrics.OrphansDeleted.Add(ctx, 1)
		}
	}
	return deleted
}

// RemediateStale clears the sandbox reference on each owning project and
// returns the success count. A failed update is logged and skipped.
func (s *CleanupService) RemediateStale(ctx context.Context, staleIDs []string, owners map[string]string) int {
	cleared := 0
	for _, id := range staleIDs {
		projectID, ok := owners[id]
		if !ok {
			continue
		}
		if err := s.store.UpdateProjectSandboxRef(ctx, projectID, nil); err != nil {
			slog.Error("failed to clear stale sandbox reference",
				"sandbox_id", id, "project_id", projectID, "error", err)
			continue
		}
		cleared++
		if s.metrics != nil {
			s.metrics.StaleRefsCleared.Add(ctx, 1)
		}
	}
	return cleared
}

// FullCleanup runs every cleanup category: orphan remediation, stale
// reference remediation, the age sweep, and the failed-run sweep. Each
// category is independent; one failing yields a partial count for that
// category without aborting the others. The returned map always reflects
// the progress made, and the error aggregates any category-internal
// failures for the caller to report.
//
// Orphan and expiry detection are independent set computations and may
// both select the same sandbox; the second delete is an idempotent no-op
// but both categories count it.
func (s *CleanupService) FullCleanup(ctx context.Context) (map[string]int, error) {
	slog.Info("starting full sandbox cleanup")
	start := s.now()

	stats := map[string]int{
		CategoryOrphaned:  0,
		CategoryOld:       0,
		CategoryFailedRun: 0,
		CategoryStaleRefs: 0,
	}
	var errs []error

	refs, refsErr := s.store.ListSandboxRefs(ctx)
	if refsErr != nil {
		slog.Error("full cleanup: list sandbox refs failed", "error", refsErr)
		errs = append(errs, refsErr)
	}
	live, liveErr := s.provider.List(ctx)
	if liveErr != nil {
		slog.Error("full cleanup: list provider sandboxes failed", "error", liveErr)
		errs = append(errs, liveErr)
	}
	if refsErr == nil && liveErr == nil {
		providerIDs := make([]string, 0, len(live))
		for _, sb := range live {
			providerIDs = append(providerIDs, sb.ID)
		}
		stats[CategoryOrphaned] = s.RemediateOrphans(ctx, s.DiffOrphans(providerIDs, refs))
		stats[CategoryStaleRefs] = s.RemediateStale(ctx, s.DiffStale(refs, providerIDs), refs)
	}

	expired, err := s.expiry.Sweep(ctx, s.MaxSandboxAge)
	stats[CategoryOld] = len(expired)
	if err != nil {
		slog.Error("full cleanup: expiry sweep failed", "error", err)
		errs = append(errs, err)
	}

	// References to sandboxes this pass just expired are cleared here
	// rather than waiting to surface as stale in the next pass. These are
	// bookkeeping for our own deletions and are not counted as stale refs.
	for _, id := range expired {
		projectID, ok := refs[id]
		if !ok {
			continue
		}
		if err := s.store.UpdateProjectSandboxRef(ctx, projectID, nil); err != nil {
			slog.Error("failed to clear reference to expired sandbox",
				"sandbox_id", id, "project_id", projectID, "error", err)
		}
	}

	failedCount, err := s.failed.Sweep(ctx, s.FailedRunLookback)
	stats[CategoryFailedRun] = failedCount
	if err != nil {
		slog.Error("full cleanup: failed-run sweep failed", "error", err)
		errs = append(errs, err)
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Record(ctx, s.now().Sub(start).Seconds())
	}

	total := 0
	for _, n := range stats {
		total += n
	}
	slog.Info("full sandbox cleanup completed",
		"total", total,
		"orphaned", stats[CategoryOrphaned],
		"old", stats[CategoryOld],
		"failed_run", stats[CategoryFailedRun],
		"stale_refs", stats[CategoryStaleRefs],
	)

	return stats, errors.Join(errs...)
}

// DeleteResult is the per-sandbox outcome of an explicit delete request.
type DeleteResult struct {
	SandboxID string `json:"sandbox_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// DeleteSandboxes deletes an explicit list of sandbox ids, reporting the
// outcome per id. Failures never abort the remaining ids.
func (s *CleanupService) DeleteSandboxes(ctx context.Context, ids []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(ids))
	for _, id := range ids {
		if err := s.provider.Delete(ctx, id); err != nil {
			slog.Error("failed to delete sandbox", "sandbox_id", id, "error", err)
			results = append(results, DeleteResult{SandboxID: id, Error: err.Error()})
			continue
		}
		slog.Info("deleted sandbox", "sandbox_id", id)
		results = append(results, DeleteResult{SandboxID: id, Success: true})
	}
	return results
}

// ReleaseProjectSandbox deletes the project's sandbox at the provider and
// clears the reference. A project without a reference is a no-op.
func (s *CleanupService) ReleaseProjectSandbox(ctx context.Context, projectID string) error {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	if p.SandboxRef == nil {
		return nil
	}

	if err := s.provider.Delete(ctx, p.SandboxRef.ID); err != nil {
		return fmt.Errorf("delete sandbox %s: %w", p.SandboxRef.ID, err)
	}
	if err := s.store.UpdateProjectSandboxRef(ctx, projectID, nil); err != nil {
		return fmt.Errorf("clear sandbox ref: %w", err)
	}

	slog.Info("released project sandbox", "project_id", projectID, "sandbox_id", p.SandboxRef.ID)
	return nil
}

// Stats is the current view of provider and record-store sandbox state.
type Stats struct {
	ProviderSandboxes  int     `json:"provider_sandboxes"`
	DatabaseReferences int     `json:"database_references"`
	OrphanedSandboxes  int     `json:"orphaned_sandboxes"`
	AverageAgeHours    float64 `json:"average_age_hours"`
	OldestSandboxHours float64 `json:"oldest_sandbox_hours"`
	SandboxesOver24h   int     `json:"sandboxes_over_24h"`
	SandboxesOver12h   int     `json:"sandboxes_over_12h"`
	SandboxesOver6h    int     `json:"sandboxes_over_6h"`
}

// Stats reports provider count, reference count, the derived orphan count,
// and an age histogram. Results are cached briefly; both sources are
// queried concurrently.
func (s *CleanupService) Stats(ctx context.Context) (*Stats, error) {
	if s.statsCache != nil {
		if data, ok, err := s.statsCache.Get(ctx, statsCacheKey); err == nil && ok {
			var cached Stats
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	var (
		live []sandbox.Sandbox
		refs map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		live, err = s.provider.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		refs, err = s.store.ListSandboxRefs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}

	stats := &Stats{
		ProviderSandboxes:  len(live),
		DatabaseReferences: len(refs),
		OrphanedSandboxes:  max(0, len(live)-len(refs)),
	}

	now := s.now()
	var totalHours float64
	counted := 0
	for _, sb := range live {
		age, err := sb.Age(now)
		if err != nil {
			continue
		}
		hours := age.Hours()
		totalHours += hours
		counted++
		if hours > stats.OldestSandboxHours {
			stats.OldestSandboxHours = hours
		}
		if hours > 24 {
			stats.SandboxesOver24h++
		}
		if hours > 12 {
			stats.SandboxesOver12h++
		}
		if hours > 6 {
			stats.SandboxesOver6h++
		}
	}
	if counted > 0 {
		stats.AverageAgeHours = totalHours / float64(counted)
	}

	if s.statsCache != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.statsCache.Set(ctx, statsCacheKey, data, s.statsTTL)
		}
	}
	return stats, nil
}

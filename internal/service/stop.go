package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bartonmalow/suna/internal/adapter/otel"
	"github.com/bartonmalow/suna/internal/domain/run"
	"github.com/bartonmalow/suna/internal/port/controlbus"
	"github.com/bartonmalow/suna/internal/port/database"
	"github.com/bartonmalow/suna/internal/port/runbuffer"
	"github.com/bartonmalow/suna/internal/port/runregistry"
)

// StopService drives the cancellation protocol for a single agent run:
// persist the terminal status with the drained output, fan stop signals
// out to every instance holding the run, then tear down the run's sandbox.
//
// The protocol is idempotent. Re-invoking it on an already-terminal run
// re-reads an empty buffer, re-applies the same status as a no-op, and
// republishes signals nobody is subscribed to.
type StopService struct {
	store     database.Store
	buffer    runbuffer.Buffer
	bus       controlbus.Bus
	registry  runregistry.Registry
	sandboxes *CleanupService
	metrics   *otel.Metrics
}

// NewStopService creates a StopService. metrics may be nil.
func NewStopService(
	store database.Store,
	buffer runbuffer.Buffer,
	bus controlbus.Bus,
	registry runregistry.Registry,
	sandboxes *CleanupService,
	metrics *otel.Metrics,
) *StopService {
	return &StopService{
		store:     store,
		buffer:    buffer,
		bus:       bus,
		registry:  registry,
		sandboxes: sandboxes,
		metrics:   metrics,
	}
}

// Stop halts the run, recording it as failed when errMsg is non-empty and
// stopped otherwise. The buffered responses are persisted to the run
// record before the buffer is discarded; if that write fails the buffer is
// kept so a retry can recover the output, and the error is returned after
// the remaining steps have still been attempted. Signal publication and
// sandbox teardown are best-effort and never abort the protocol.
func (s *StopService) Stop(ctx context.Context, runID, errMsg string) (run.Status, error) {
	slog.Info("stopping agent run", "run_id", runID)

	rec, err := s.store.GetAgentRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("stop run: %w", err)
	}

	finalStatus := run.StatusStopped
	if errMsg != "" {
		finalStatus = run.StatusFailed
	}

	// Drain the buffer best-effort; the responses are persisted together
	// with the status below.
	responses, err := s.buffer.ReadAll(ctx, runID)
	if err != nil {
		slog.Error("failed to read response buffer", "run_id", runID, "error", err)
		responses = nil
	} else {
		slog.Info("drained response buffer", "run_id", runID, "responses", len(responses))
	}

	persistErr := s.store.UpdateAgentRunStatus(ctx, runID, finalStatus, errMsg, responses)
	if persistErr != nil {
		slog.Error("failed to persist final run status",
			"run_id", runID, "status", finalStatus, "error", persistErr)
	}

	// Global signal: every instance holding the run subscribes here.
	globalSubject := run.ControlSubject(runID)
	if err := s.bus.Publish(ctx, globalSubject, run.StopSignal); err != nil {
		slog.Error("failed to publish stop signal", "subject", globalSubject, "error", err)
	}

	// Scoped signals to each instance found in the registry.
	keys, err := s.registry.ScanActive(ctx, runID)
	if err != nil {
		slog.Error("failed to scan active instances", "run_id", runID, "error", err)
	}
	for _, key := range keys {
		instanceID, _, err := runregistry.ParseActiveKey(key)
		if err != nil {
			slog.Warn("skipping malformed registry key", "key", key, "error", err)
			continue
		}
		subject := run.InstanceControlSubject(runID, instanceID)
		if err := s.bus.Publish(ctx, subject, run.StopSignal); err != nil {
			slog.Warn("failed to publish instance stop signal", "subject", subject, "error", err)
		}
	}

	// The buffer is the only durable copy of in-flight output until the
	// status write lands; keep it when persistence failed.
	if persistErr == nil {
		if err := s.buffer.Delete(ctx, runID); err != nil {
			slog.Error("failed to delete response buffer", "run_id", runID, "error", err)
		}
	} else {
		slog.Warn("keeping response buffer for retry", "run_id", runID)
	}

	// Sandbox teardown never rolls back the committed status.
	if err := s.sandboxes.ReleaseProjectSandbox(ctx, rec.ProjectID); err != nil {
		slog.Error("failed to tear down run sandbox",
			"run_id", runID, "project_id", rec.ProjectID, "error", err)
	}

	if persistErr != nil {
		return finalStatus, fmt.Errorf("persist final status for run %s: %w", runID, persistErr)
	}

	if s.metrics != nil {
		s.metrics.RunsStopped.Add(ctx, 1)
	}
	slog.Info("stop protocol completed", "run_id", runID, "status", finalStatus)
	return finalStatus, nil
}

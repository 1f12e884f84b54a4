package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bartonmalow/suna/internal/config"
	"github.com/bartonmalow/suna/internal/domain"
	"github.com/bartonmalow/suna/internal/domain/run"
	"github.com/bartonmalow/suna/internal/domain/sandbox"
	"github.com/bartonmalow/suna/internal/port/database"
)

// Ensure Store implements database.Store at compile time.
var _ database.Store = (*Store)(nil)

// testStore connects to Postgres or skips the test if DATABASE_URL is not set.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	pool, err := NewPool(ctx, config.Postgres{
		DSN:             dsn,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
		HealthCheck:     time.Minute,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func seedProject(t *testing.T, s *Store, ref *sandbox.Ref) string {
	t.Helper()
	id := uuid.NewString()
	var refJSON []byte
	if ref != nil {
		refJSON, _ = json.Marshal(ref)
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO projects (project_id, name, sandbox) VALUES ($1, $2, $3)`,
		id, "test", refJSON)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return id
}

func seedRun(t *testing.T, s *Store, projectID string, status run.Status) string {
	t.Helper()
	id := uuid.NewString()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO agent_runs (id, project_id, status) VALUES ($1, $2, $3)`,
		id, projectID, status)
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return id
}

func TestProjectSandboxRefRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := seedProject(t, s, &sandbox.Ref{ID: "sb-1", Pass: "pw"})

	p, err := s.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.SandboxRef == nil || p.SandboxRef.ID != "sb-1" {
		t.Fatalf("SandboxRef = %+v, want sb-1", p.SandboxRef)
	}

	if err := s.UpdateProjectSandboxRef(ctx, id, nil); err != nil {
		t.Fatalf("UpdateProjectSandboxRef: %v", err)
	}
	p, err = s.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("GetProject after clear: %v", err)
	}
	if p.SandboxRef != nil {
		t.Errorf("SandboxRef = %+v, want nil", p.SandboxRef)
	}
}

func TestUpdateAgentRunStatusMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	projectID := seedProject(t, s, nil)
	runID := seedRun(t, s, projectID, run.StatusRunning)

	responses := []run.Response{json.RawMessage(`{"type":"a"}`), json.RawMessage(`{"type":"b"}`)}
	if err := s.UpdateAgentRunStatus(ctx, runID, run.StatusStopped, "", responses); err != nil {
		t.Fatalf("UpdateAgentRunStatus: %v", err)
	}

	// Re-applying the same terminal status is a no-op, not a conflict, and
	// must not overwrite the responses persisted by the first write.
	if err := s.UpdateAgentRunStatus(ctx, runID, run.StatusStopped, "", nil); err != nil {
		t.Fatalf("idempotent re-apply: %v", err)
	}
	r0, err := s.GetAgentRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetAgentRun after re-apply: %v", err)
	}
	if len(r0.Responses) != 2 {
		t.Errorf("Responses after re-apply = %d, want 2", len(r0.Responses))
	}

	// Moving to a different terminal status is rejected.
	err = s.UpdateAgentRunStatus(ctx, runID, run.StatusFailed, "late failure", nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	r, err := s.GetAgentRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetAgentRun: %v", err)
	}
	if r.Status != run.StatusStopped {
		t.Errorf("Status = %s, want stopped", r.Status)
	}
}

func TestListFailedRunsSince(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	projectID := seedProject(t, s, nil)
	failedID := seedRun(t, s, projectID, run.StatusFailed)
	seedRun(t, s, projectID, run.StatusCompleted)

	runs, err := s.ListFailedRunsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListFailedRunsSince: %v", err)
	}

	found := false
	for _, r := range runs {
		if r.ID == failedID {
			found = true
		}
		if r.Status != run.StatusFailed {
			t.Errorf("run %s status = %s, want failed", r.ID, r.Status)
		}
	}
	if !found {
		t.Errorf("failed run %s not returned", failedID)
	}
}

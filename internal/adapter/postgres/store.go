package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bartonmalow/suna/internal/domain"
	"github.com/bartonmalow/suna/internal/domain/project"
	"github.com/bartonmalow/suna/internal/domain/run"
	"github.com/bartonmalow/suna/internal/domain/sandbox"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Projects ---

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT project_id, name, sandbox, created_at, updated_at
		 FROM projects WHERE project_id = $1`, id)

	var (
		p          project.Project
		sandboxRaw []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &sandboxRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}

	if len(sandboxRaw) > 0 {
		var ref sandbox.Ref
		if err := json.Unmarshal(sandboxRaw, &ref); err != nil {
			return nil, fmt.Errorf("get project %s: decode sandbox ref: %w", id, err)
		}
		if ref.ID != "" {
			p.SandboxRef = &ref
		}
	}
	return &p, nil
}

func (s *Store) UpdateProjectSandboxRef(ctx context.Context, projectID string, ref *sandbox.Ref) error {
	var refJSON []byte
	if ref != nil {
		var err error
		refJSON, err = json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("marshal sandbox ref: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET sandbox = $2, updated_at = now() WHERE project_id = $1`,
		projectID, refJSON)
	if err != nil {
		return fmt.Errorf("update project %s sandbox ref: %w", projectID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update project %s sandbox ref: %w", projectID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSandboxRefs(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sandbox ->> 'id', project_id FROM projects
		 WHERE sandbox IS NOT NULL AND sandbox ->> 'id' IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list sandbox refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]string)
	for rows.Next() {
		var sandboxID, projectID string
		if err := rows.Scan(&sandboxID, &projectID); err != nil {
			return nil, fmt.Errorf("scan sandbox ref: %w", err)
		}
		refs[sandboxID] = projectID
	}
	return refs, rows.Err()
}

// --- Agent runs ---

func (s *Store) GetAgentRun(ctx context.Context, id string) (*run.AgentRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, status, error, responses, created_at, completed_at
		 FROM agent_runs WHERE id = $1`, id)

	r, err := scanAgentRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent run %s: %w", id, err)
	}
	return r, nil
}

// UpdateAgentRunStatus persists the terminal status and drained responses.
// The WHERE clause enforces the monotonic transition rule: only a running
// run can change status. Re-applying the current terminal status is a true
// no-op that leaves the previously persisted responses untouched; any other
// transition out of a terminal status is a conflict.
func (s *Store) UpdateAgentRunStatus(ctx context.Context, id string, status run.Status, errMsg string, responses []run.Response) error {
	if responses == nil {
		responses = []run.Response{}
	}
	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_runs
		 SET status = $2, error = $3, responses = $4,
		     completed_at = COALESCE(completed_at, now())
		 WHERE id = $1 AND status = 'running'`,
		id, status, errMsg, responsesJSON)
	if err != nil {
		return fmt.Errorf("update agent run %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.GetAgentRun(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status == status {
			return nil
		}
		return fmt.Errorf("update agent run %s status to %s: %w", id, status, domain.ErrConflict)
	}
	return nil
}

func (s *Store) ListFailedRunsSince(ctx context.Context, since time.Time) ([]run.AgentRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, status, error, responses, created_at, completed_at
		 FROM agent_runs WHERE status = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		run.StatusFailed, since)
	if err != nil {
		return nil, fmt.Errorf("list failed runs: %w", err)
	}
	defer rows.Close()

	var runs []run.AgentRun
	for rows.Next() {
		r, err := scanAgentRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanAgentRun(row pgx.Row) (*run.AgentRun, error) {
	var (
		r            run.AgentRun
		responsesRaw []byte
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Status, &r.Error, &responsesRaw, &r.CreatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	if len(responsesRaw) > 0 {
		if err := json.Unmarshal(responsesRaw, &r.Responses); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}
	}
	return &r, nil
}

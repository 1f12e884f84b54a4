// Package database defines the port interface for the persisted record store.
package database

import (
	"context"
	"time"

	"github.com/bartonmalow/suna/internal/domain/project"
	"github.com/bartonmalow/suna/internal/domain/run"
	"github.com/bartonmalow/suna/internal/domain/sandbox"
)

// Store is the port interface for project and agent-run records.
type Store interface {
	// GetProject returns a project by id, or domain.ErrNotFound.
	GetProject(ctx context.Context, id string) (*project.Project, error)

	// UpdateProjectSandboxRef sets or clears (ref == nil) the project's
	// sandbox reference.
	UpdateProjectSandboxRef(ctx context.Context, projectID string, ref *sandbox.Ref) error

	// ListSandboxRefs returns every non-null sandbox reference in the
	// store as a sandbox id -> owning project id map.
	ListSandboxRefs(ctx context.Context) (map[string]string, error)

	// GetAgentRun returns an agent run by id, or domain.ErrNotFound.
	GetAgentRun(ctx context.Context, id string) (*run.AgentRun, error)

	// UpdateAgentRunStatus moves a run to the given status and persists the
	// drained responses. Transitions are monotonic: running may move to any
	// terminal status, and re-applying the current terminal status is a
	// no-op; any other transition returns domain.ErrConflict.
	UpdateAgentRunStatus(ctx context.Context, id string, status run.Status, errMsg string, responses []run.Response) error

	// ListFailedRunsSince returns runs with status failed created at or
	// after the given time.
	ListFailedRunsSince(ctx context.Context, since time.Time) ([]run.AgentRun, error)
}

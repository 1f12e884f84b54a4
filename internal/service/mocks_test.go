package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bartonmalow/suna/internal/domain"
	"github.com/bartonmalow/suna/internal/domain/project"
	"github.com/bartonmalow/suna/internal/domain/run"
	"github.com/bartonmalow/suna/internal/domain/sandbox"
	"github.com/bartonmalow/suna/internal/port/controlbus"
	"github.com/bartonmalow/suna/internal/port/database"
	"github.com/bartonmalow/suna/internal/port/provider"
	"github.com/bartonmalow/suna/internal/port/runbuffer"
	"github.com/bartonmalow/suna/internal/port/runregistry"
)

// Compile-time port assertions for the mocks.
var (
	_ database.Store           = (*mockStore)(nil)
	_ provider.SandboxProvider = (*mockProvider)(nil)
	_ controlbus.Bus           = (*mockBus)(nil)
	_ runbuffer.Buffer         = (*mockBuffer)(nil)
	_ runregistry.Registry     = (*mockRegistry)(nil)
)

// mockStore is a minimal in-memory implementation of database.Store.
type mockStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	runs     map[string]*run.AgentRun

	// Error hooks — set these to inject failures.
	getProjectErr      error
	updateRefErr       error
	listRefsErr        error
	getRunErr          error
	updateRunStatusErr error
	listFailedErr      error

	clearedRefs []string
}

func newMockStore() *mockStore {
	return &mockStore{
		projects: make(map[string]*project.Project),
		runs:     make(map[string]*run.AgentRun),
	}
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	if m.getProjectErr != nil {
		return nil, m.getProjectErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) UpdateProjectSandboxRef(_ context.Context, projectID string, ref *sandbox.Ref) error {
	if m.updateRefErr != nil {
		return m.updateRefErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return fmt.Errorf("update project %s: %w", projectID, domain.ErrNotFound)
	}
	p.SandboxRef = ref
	if ref == nil {
		m.clearedRefs = append(m.clearedRefs, projectID)
	}
	return nil
}

func (m *mockStore) ListSandboxRefs(_ context.Context) (map[string]string, error) {
	if m.listRefsErr != nil {
		return nil, m.listRefsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make(map[string]string)
	for id, p := range m.projects {
		if p.SandboxRef != nil {
			refs[p.SandboxRef.ID] = id
		}
	}
	return refs, nil
}

func (m *mockStore) GetAgentRun(_ context.Context, id string) (*run.AgentRun, error) {
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("get agent run %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) UpdateAgentRunStatus(_ context.Context, id string, status run.Status, errMsg string, responses []run.Response) error {
	if m.updateRunStatusErr != nil {
		return m.updateRunStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("update agent run %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != run.StatusRunning {
		// Same-terminal re-apply is a no-op that keeps the stored responses.
		if r.Status == status {
			return nil
		}
		return fmt.Errorf("update agent run %s: %w", id, domain.ErrConflict)
	}
	r.Status = status
	r.Error = errMsg
	r.Responses = responses
	return nil
}

func (m *mockStore) ListFailedRunsSince(_ context.Context, since time.Time) ([]run.AgentRun, error) {
	if m.listFailedErr != nil {
		return nil, m.listFailedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []run.AgentRun
	for _, r := range m.runs {
		if r.Status == run.StatusFailed && !r.CreatedAt.Before(since) {
			failed = append(failed, *r)
		}
	}
	return failed, nil
}

// mockProvider is an in-memory sandbox provider.
type mockProvider struct {
	mu        sync.Mutex
	sandboxes map[string]sandbox.Sandbox

	listErr    error
	deleteErrs map[string]error // per-id delete failures

	deleted []string
}

func newMockProvider(sandboxes ...sandbox.Sandbox) *mockProvider {
	p := &mockProvider{
		sandboxes:  make(map[string]sandbox.Sandbox),
		deleteErrs: make(map[string]error),
	}
	for _, sb := range sandboxes {
		p.sandboxes[sb.ID] = sb
	}
	return p
}

func (m *mockProvider) List(_ context.Context) ([]sandbox.Sandbox, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sandbox.Sandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		out = append(out, sb)
	}
	return out, nil
}

func (m *mockProvider) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErrs[id]; err != nil {
		return err
	}
	// Deleting an absent id is success.
	delete(m.sandboxes, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockProvider) deletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// mockBus records published signals.
type mockBus struct {
	mu         sync.Mutex
	published  map[string][]string // subject -> payloads
	publishErr error
}

func newMockBus() *mockBus {
	return &mockBus{published: make(map[string][]string)}
}

func (m *mockBus) Publish(_ context.Context, subject, payload string) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[subject] = append(m.published[subject], payload)
	return nil
}

// mockBuffer is an in-memory response buffer.
type mockBuffer struct {
	mu   sync.Mutex
	data map[string][]run.Response

	readErr   error
	deleteErr error
}

func newMockBuffer() *mockBuffer {
	return &mockBuffer{data: make(map[string][]run.Response)}
}

func (m *mockBuffer) ReadAll(_ context.Context, runID string) ([]run.Response, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]run.Response(nil), m.data[runID]...), nil
}

func (m *mockBuffer) Append(_ context.Context, runID string, resp run.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[runID] = append(m.data[runID], resp)
	return nil
}

func (m *mockBuffer) Delete(_ context.Context, runID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, runID)
	return nil
}

func (m *mockBuffer) exists(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[runID]
	return ok
}

// mockRegistry returns a fixed key set.
type mockRegistry struct {
	keys    []string
	scanErr error
}

func (m *mockRegistry) ScanActive(_ context.Context, _ string) ([]string, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.keys, nil
}

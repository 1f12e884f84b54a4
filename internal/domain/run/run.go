// Package run defines the AgentRun entity, its status machine, and the
// control-channel naming used to signal worker instances.
package run

import (
	"encoding/json"
	"time"
)

// Status represents the current state of an agent run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Terminal reports whether the status is final. Transitions are monotonic:
// running may move to any terminal status, terminal statuses never change.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusCompleted
}

// Response is one ordered output event produced by a run. The payload is
// opaque to this service; it is drained from the response buffer and
// persisted verbatim.
type Response = json.RawMessage

// AgentRun is a persisted agent run record.
type AgentRun struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Responses   []Response `json:"responses,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StopSignal is the payload published on control channels to halt a run.
const StopSignal = "STOP"

// ControlSubject returns the run's global control channel. Every worker
// instance holding the run subscribes to it.
func ControlSubject(runID string) string {
	return "run." + runID + ".control"
}

// InstanceControlSubject returns the control channel scoped to a single
// worker instance.
func InstanceControlSubject(runID, instanceID string) string {
	return "run." + runID + ".control." + instanceID
}

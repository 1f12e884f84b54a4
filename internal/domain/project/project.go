// Package project defines the Project record entity.
package project

import (
	"time"

	"github.com/bartonmalow/suna/internal/domain/sandbox"
)

// Project is a persisted project record. Each project holds at most one
// sandbox reference; the reference may be stale when the provider has
// already dropped the sandbox.
type Project struct {
	ID         string       `json:"project_id"`
	Name       string       `json:"name"`
	SandboxRef *sandbox.Ref `json:"sandbox,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

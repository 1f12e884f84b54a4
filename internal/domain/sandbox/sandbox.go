// Package sandbox defines the sandbox domain entities: the live compute unit
// owned by the external provider and the reference to it held on a project.
package sandbox

import "time"

// Sandbox is a live compute unit as reported by the provider. CreatedAt is
// kept as the provider's raw timestamp string; not every provider entry
// carries a parseable timestamp, so parsing is deferred to the caller.
type Sandbox struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Ref is the record store's reference to a provisioned sandbox. The store
// never owns the sandbox itself, only this back-reference.
type Ref struct {
	ID   string `json:"id"`
	Pass string `json:"pass,omitempty"`
}

// ParseCreatedAt parses a provider timestamp (RFC 3339, "Z" or numeric
// offset suffix).
func ParseCreatedAt(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// Age returns the sandbox age relative to now, or an error when the
// provider timestamp cannot be parsed.
func (s Sandbox) Age(now time.Time) (time.Duration, error) {
	created, err := ParseCreatedAt(s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return now.Sub(created), nil
}

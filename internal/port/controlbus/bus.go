// Package controlbus defines the port interface for publishing run control
// signals to worker instances.
package controlbus

import "context"

// Bus publishes fire-and-forget control signals. Delivery is best-effort:
// a signal published with no subscriber is dropped, and re-publishing to an
// already-stopped run is harmless.
type Bus interface {
	Publish(ctx context.Context, subject, payload string) error
}

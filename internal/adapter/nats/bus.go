// Package nats implements the control bus port over core NATS publish.
//
// Control signals are ephemeral fan-out messages: a publish with no
// subscriber is dropped by design, so plain publish (no JetStream
// persistence) is the right delivery mode here.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Bus implements controlbus.Bus using a core NATS connection.
type Bus struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("nats connected", "url", url)
	return &Bus{nc: nc}, nil
}

// NewBus wraps an existing NATS connection.
func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

// Conn exposes the underlying connection for JetStream consumers.
func (b *Bus) Conn() *nats.Conn {
	return b.nc
}

// Publish sends a signal to the given subject and flushes so the call is
// bounded by ctx rather than fire-and-forget buffering.
func (b *Bus) Publish(ctx context.Context, subject, payload string) error {
	if err := b.nc.Publish(subject, []byte(payload)); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (b *Bus) Close() error {
	b.nc.Close()
	return nil
}

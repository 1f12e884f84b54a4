// Package otel provides OpenTelemetry metrics setup and instruments for
// the cleanup service.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "suna"

// Metrics holds all cleanup metric instruments.
type Metrics struct {
	OrphansDeleted   metric.Int64Counter
	ExpiredDeleted   metric.Int64Counter
	FailedRunDeleted metric.Int64Counter
	StaleRefsCleared metric.Int64Counter
	RunsStopped      metric.Int64Counter
	SweepDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.OrphansDeleted, err = meter.Int64Counter("suna.sandboxes.orphans_deleted",
		metric.WithDescription("Orphaned sandboxes deleted from the provider"))
	if err != nil {
		return nil, err
	}

	m.ExpiredDeleted, err = meter.Int64Counter("suna.sandboxes.expired_deleted",
		metric.WithDescription("Sandboxes deleted for exceeding the age threshold"))
	if err != nil {
		return nil, err
	}

	m.FailedRunDeleted, err = meter.Int64Counter("suna.sandboxes.failed_run_deleted",
		metric.WithDescription("Sandboxes deleted from failed agent runs"))
	if err != nil {
		return nil, err
	}

	m.StaleRefsCleared, err = meter.Int64Counter("suna.projects.stale_refs_cleared",
		metric.WithDescription("Stale sandbox references cleared from projects"))
	if err != nil {
		return nil, err
	}

	m.RunsStopped, err = meter.Int64Counter("suna.runs.stopped",
		metric.WithDescription("Agent runs stopped via the cancellation protocol"))
	if err != nil {
		return nil, err
	}

	m.SweepDuration, err = meter.Float64Histogram("suna.sweep.duration_seconds",
		metric.WithDescription("Full cleanup pass duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

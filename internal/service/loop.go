package service

import (
	"context"
	"log/slog"
	"time"
)

// RunPeriodic runs a full cleanup pass every interval until ctx is done.
// A pass that reports internal failures is retried after the shortened
// retryDelay instead of waiting the whole interval.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval, retryDelay time.Duration) {
	slog.Info("starting periodic sandbox cleanup",
		"interval", interval, "retry_delay", retryDelay)

	delay := interval
	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic sandbox cleanup stopped")
			return
		case <-time.After(delay):
		}

		slog.Info("running periodic sandbox cleanup")
		if _, err := s.FullCleanup(ctx); err != nil {
			slog.Error("periodic cleanup pass failed", "error", err)
			delay = retryDelay
			continue
		}
		delay = interval
	}
}

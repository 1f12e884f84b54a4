package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAsyncHandlerDrains(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	h := NewAsyncHandler(inner, 16, 1)

	log := slog.New(h)
	log.Info("hello", "k", "v")

	h.Close()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log record: %v", err)
	}
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	blocked := make(chan struct{})
	inner := &blockingHandler{release: blocked}
	h := NewAsyncHandler(inner, 1, 1)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "m", 0)
	// First record occupies the worker, second fills the channel, the rest drop.
	for range 5 {
		_ = h.Handle(context.Background(), rec)
	}
	close(blocked)
	h.Close()

	if h.DroppedCount() == 0 {
		t.Error("expected dropped records")
	}
}

type blockingHandler struct {
	release chan struct{}
}

func (b *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (b *blockingHandler) Handle(context.Context, slog.Record) error { //nolint:gocritic
	<-b.release
	return nil
}

func (b *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return b }
func (b *blockingHandler) WithGroup(string) slog.Handler      { return b }

package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bartonmalow/suna/internal/domain/sandbox"
)

func TestExpirySweepDeletesOnlyPastThreshold(t *testing.T) {
	prov := newMockProvider(
		sandboxAged("young", 2*time.Hour),
		sandboxAged("old", 30*time.Hour),
	)
	sweeper := NewExpirySweeper(prov, nil)
	sweeper.now = func() time.Time { return testNow }

	deleted, err := sweeper.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !slices.Equal(deleted, []string{"old"}) {
		t.Errorf("deleted = %v, want [old]", deleted)
	}
	if _, ok := prov.sandboxes["young"]; !ok {
		t.Error("young sandbox should survive the sweep")
	}
}

func TestExpirySweepExactThresholdRetained(t *testing.T) {
	prov := newMockProvider(sandboxAged("edge", 24*time.Hour))
	sweeper := NewExpirySweeper(prov, nil)
	sweeper.now = func() time.Time { return testNow }

	deleted, err := sweeper.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("deleted = %v, want none at the exact threshold", deleted)
	}
	if _, ok := prov.sandboxes["edge"]; !ok {
		t.Error("sandbox exactly at the threshold should be retained")
	}
}

func TestExpirySweepSkipsUnparseableTimestamps(t *testing.T) {
	prov := newMockProvider(
		sandbox.Sandbox{ID: "bad", CreatedAt: "not-a-timestamp"},
		sandboxAged("old", 30*time.Hour),
	)
	sweeper := NewExpirySweeper(prov, nil)
	sweeper.now = func() time.Time { return testNow }

	deleted, err := sweeper.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !slices.Equal(deleted, []string{"old"}) {
		t.Errorf("deleted = %v, want [old]", deleted)
	}
	if _, ok := prov.sandboxes["bad"]; !ok {
		t.Error("sandbox with unparseable timestamp must not be deleted")
	}
}

func TestExpirySweepContinuesPastDeleteFailure(t *testing.T) {
	prov := newMockProvider(
		sandboxAged("a", 30*time.Hour),
		sandboxAged("b", 40*time.Hour),
	)
	prov.deleteErrs["a"] = errors.New("provider refused")
	sweeper := NewExpirySweeper(prov, nil)
	sweeper.now = func() time.Time { return testNow }

	deleted, err := sweeper.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !slices.Equal(deleted, []string{"b"}) {
		t.Errorf("deleted = %v, want [b]", deleted)
	}
}

func TestExpirySweepListFailure(t *testing.T) {
	prov := newMockProvider()
	prov.listErr = errors.New("provider down")
	sweeper := NewExpirySweeper(prov, nil)

	if _, err := sweeper.Sweep(context.Background(), 24*time.Hour); err == nil {
		t.Error("expected error when the provider listing fails")
	}
}

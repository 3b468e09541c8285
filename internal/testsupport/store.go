package testsupport

import (
	"context"
	"testing"

	"dicer/internal/config"
	"dicer/internal/matrix"
	"dicer/internal/runstate"
)

// MustOpenStore opens a runstate.Store in a temp run directory and
// registers cleanup.
func MustOpenStore(t testing.TB, runDir string) *runstate.Store {
	t.Helper()

	store, err := runstate.Open(runDir)
	if err != nil {
		t.Fatalf("runstate.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedRun creates a run header plus its task matrix in the store and
// returns the tasks.
func SeedRun(t testing.TB, store *runstate.Store, cfg *config.Config, runID string) []*runstate.Task {
	t.Helper()

	ctx := context.Background()
	run := &runstate.Run{
		ID:         runID,
		OfferID:    cfg.OfferID,
		ConfigJSON: "{}",
		ConfigHash: "testhash",
		CostCap:    cfg.Cost.Cap,
		Status:     runstate.RunActive,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	tasks, err := matrix.Build(cfg, runID)
	if err != nil {
		t.Fatalf("matrix.Build: %v", err)
	}
	if err := store.InsertTasks(ctx, tasks); err != nil {
		t.Fatalf("store.InsertTasks: %v", err)
	}
	return tasks
}

package runstate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dicer/internal/runstate"
	"dicer/internal/services"
	"dicer/internal/testsupport"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := testsupport.MustOpenStore(t, dir)
	cfg := testsupport.NewConfig(t)
	tasks := testsupport.SeedRun(t, store, cfg, "run-1")
	ctx := context.Background()

	// Finish one task end to end so the snapshot carries a decision bucket.
	task := tasks[0]
	score := 0.91
	task.MediaHandle = "media-1"
	task.VideoHandle = "video-1"
	task.Score = &score
	task.Decision = runstate.DecisionAccepted
	if err := store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	for _, stage := range runstate.Stages() {
		if err := store.UpdateStage(ctx, task.ID, stage, runstate.StageSucceeded, ""); err != nil {
			t.Fatalf("UpdateStage: %v", err)
		}
	}
	if err := store.AppendCostEntry(ctx, &runstate.CostEntry{Provider: "rubric", TaskID: task.ID, Amount: 0.06}); err != nil {
		t.Fatalf("AppendCostEntry: %v", err)
	}

	manifest, err := store.Snapshot(ctx, "run-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if manifest.RunID != "run-1" || len(manifest.Tasks) != len(tasks) {
		t.Fatalf("manifest = %+v", manifest)
	}
	if len(manifest.Buckets.Accepted) != 1 || manifest.Buckets.Accepted[0] != task.ID {
		t.Fatalf("accepted bucket = %v", manifest.Buckets.Accepted)
	}
	if manifest.Cost.Total != 0.06 || manifest.Cost.ByProvider["rubric"] != 0.06 {
		t.Fatalf("cost = %+v", manifest.Cost)
	}

	if err := runstate.SaveManifest(dir, manifest); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	loaded, err := runstate.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if loaded.RunID != manifest.RunID || loaded.ConfigHash != manifest.ConfigHash {
		t.Fatalf("round trip changed identity: %+v", loaded)
	}
	var completed *runstate.ManifestTask
	for i := range loaded.Tasks {
		if loaded.Tasks[i].TaskID == task.ID {
			completed = &loaded.Tasks[i]
		}
	}
	if completed == nil {
		t.Fatalf("completed task missing from manifest")
	}
	if completed.State != string(runstate.TaskCompleted) || completed.Decision != string(runstate.DecisionAccepted) {
		t.Fatalf("completed entry = %+v", completed)
	}
	if completed.OutputFile != task.OutputFilename() {
		t.Fatalf("output file = %q, want %q", completed.OutputFile, task.OutputFilename())
	}
}

func TestLoadManifestMissingFileIsCorruption(t *testing.T) {
	_, err := runstate.LoadManifest(t.TempDir())
	if !errors.Is(err, services.ErrStateCorruption) {
		t.Fatalf("LoadManifest = %v, want state corruption", err)
	}
}

func TestLoadManifestRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, runstate.ManifestFilename), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runstate.LoadManifest(dir)
	if !errors.Is(err, services.ErrStateCorruption) {
		t.Fatalf("LoadManifest = %v, want state corruption", err)
	}
}

func TestLoadManifestRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	// Valid JSON, but status is outside the allowed set and tasks are missing.
	payload := `{"run_id":"r","offer_id":"o","config_hash":"h","cost_cap":10,"status":"exploded","created_at":"now","classification":{"accepted":[],"review":[],"rejected":[]},"cost":{"total":0,"by_provider":{}}}`
	if err := os.WriteFile(filepath.Join(dir, runstate.ManifestFilename), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runstate.LoadManifest(dir)
	if !errors.Is(err, services.ErrStateCorruption) {
		t.Fatalf("LoadManifest = %v, want state corruption", err)
	}
}

func TestConfigHashIgnoresKeyOrder(t *testing.T) {
	first, err := runstate.ConfigHash([]byte(`{"offer_id":"x","cost":{"cap":30},"actors":["mia","jake"]}`))
	if err != nil {
		t.Fatalf("ConfigHash: %v", err)
	}
	second, err := runstate.ConfigHash([]byte(`{"actors":["mia","jake"],"offer_id":"x","cost":{"cap":30}}`))
	if err != nil {
		t.Fatalf("ConfigHash: %v", err)
	}
	if first != second {
		t.Fatalf("hash depends on key order: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("hash length = %d, want 16", len(first))
	}

	third, err := runstate.ConfigHash([]byte(`{"offer_id":"y","cost":{"cap":30},"actors":["mia","jake"]}`))
	if err != nil {
		t.Fatalf("ConfigHash: %v", err)
	}
	if third == first {
		t.Fatal("different configurations should hash differently")
	}
}

func TestConfigHashRejectsInvalidJSON(t *testing.T) {
	if _, err := runstate.ConfigHash([]byte(`{"cap":`)); err == nil {
		t.Fatal("ConfigHash should reject malformed input")
	}
}

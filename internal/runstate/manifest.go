package runstate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"dicer/internal/services"
)

//go:embed manifest_schema.json
var manifestSchemaJSON string

// ManifestFilename is the operator-facing snapshot written into the run directory.
const ManifestFilename = "manifest.json"

// Manifest is the JSON snapshot of a run: configuration identity, the full
// task set with stage states, classification buckets, and spend totals.
type Manifest struct {
	RunID       string           `json:"run_id"`
	OfferID     string           `json:"offer_id"`
	ConfigHash  string           `json:"config_hash"`
	CostCap     float64          `json:"cost_cap"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	FinalizedAt *time.Time       `json:"finalized_at,omitempty"`
	Tasks       []ManifestTask   `json:"tasks"`
	Buckets     ManifestBuckets  `json:"classification"`
	Cost        ManifestCost     `json:"cost"`
}

// ManifestTask is one task's snapshot entry.
type ManifestTask struct {
	TaskID        string                   `json:"task_id"`
	Actor         string                   `json:"actor"`
	Kind          string                   `json:"kind"`
	VariantIndex  int                      `json:"variant_index"`
	State         string                   `json:"state"`
	Stages        map[string]ManifestStage `json:"stages"`
	Divergence    float64                  `json:"divergence,omitempty"`
	Score         *float64                 `json:"score,omitempty"`
	Decision      string                   `json:"decision,omitempty"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	AbortReason   string                   `json:"abort_reason,omitempty"`
	OutputFile    string                   `json:"output_file,omitempty"`
}

// ManifestStage is one stage entry of a task snapshot.
type ManifestStage struct {
	Status  string `json:"status"`
	Attempt int    `json:"attempt"`
	Detail  string `json:"detail,omitempty"`
}

// ManifestBuckets lists completed task IDs per classification decision.
type ManifestBuckets struct {
	Accepted []string `json:"accepted"`
	Review   []string `json:"review"`
	Rejected []string `json:"rejected"`
}

// ManifestCost summarizes committed spend.
type ManifestCost struct {
	Total      float64            `json:"total"`
	ByProvider map[string]float64 `json:"by_provider"`
}

// Snapshot assembles the current manifest from the store.
func (s *Store) Snapshot(ctx context.Context, runID string) (*Manifest, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrStateCorruption, "state", "snapshot", "run header missing", nil)
	}
	tasks, err := s.ListTasks(ctx, runID)
	if err != nil {
		return nil, err
	}
	total, byProvider, err := s.CostTotals(ctx)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		RunID:       run.ID,
		OfferID:     run.OfferID,
		ConfigHash:  run.ConfigHash,
		CostCap:     run.CostCap,
		Status:      string(run.Status),
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		FinalizedAt: run.FinalizedAt,
		Buckets: ManifestBuckets{
			Accepted: []string{},
			Review:   []string{},
			Rejected: []string{},
		},
		Cost: ManifestCost{Total: total, ByProvider: byProvider},
	}
	if manifest.Cost.ByProvider == nil {
		manifest.Cost.ByProvider = map[string]float64{}
	}

	for _, task := range tasks {
		entry := ManifestTask{
			TaskID:        task.ID,
			Actor:         task.ActorName,
			Kind:          string(task.Kind),
			VariantIndex:  task.VariantIndex,
			State:         string(task.State()),
			Stages:        make(map[string]ManifestStage, len(task.StageVector)),
			Divergence:    task.Divergence,
			Score:         task.Score,
			Decision:      string(task.Decision),
			FailureReason: task.FailureReason,
			AbortReason:   task.AbortReason,
		}
		if task.VideoHandle != "" {
			entry.OutputFile = task.OutputFilename()
		}
		for stage, record := range task.StageVector {
			entry.Stages[string(stage)] = ManifestStage{
				Status:  string(record.Status),
				Attempt: record.Attempt,
				Detail:  record.Detail,
			}
		}
		manifest.Tasks = append(manifest.Tasks, entry)

		switch task.Decision {
		case DecisionAccepted:
			manifest.Buckets.Accepted = append(manifest.Buckets.Accepted, task.ID)
		case DecisionReview:
			manifest.Buckets.Review = append(manifest.Buckets.Review, task.ID)
		case DecisionRejected:
			manifest.Buckets.Rejected = append(manifest.Buckets.Rejected, task.ID)
		}
	}

	return manifest, nil
}

// SaveManifest atomically replaces the manifest file: a concurrent reader
// sees either the previous snapshot or the new one, never a partial write.
func SaveManifest(runDir string, manifest *Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	target := filepath.Join(runDir, ManifestFilename)
	tmp, err := os.CreateTemp(runDir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchemaJSON)); err != nil {
			manifestSchemaErr = fmt.Errorf("add manifest schema: %w", err)
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile("manifest.json")
	})
	return manifestSchema, manifestSchemaErr
}

// LoadManifest reads and validates a manifest snapshot. Schema violations
// and unreadable files surface as state corruption so a resume never
// silently restarts from scratch.
func LoadManifest(runDir string) (*Manifest, error) {
	payload, err := os.ReadFile(filepath.Join(runDir, ManifestFilename))
	if err != nil {
		return nil, services.Wrap(services.ErrStateCorruption, "state", "load manifest", "read snapshot", err)
	}

	schema, err := compiledManifestSchema()
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, services.Wrap(services.ErrStateCorruption, "state", "load manifest", "decode snapshot", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, services.Wrap(services.ErrStateCorruption, "state", "load manifest", "snapshot failed schema validation", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, services.Wrap(services.ErrStateCorruption, "state", "load manifest", "decode snapshot", err)
	}
	return &manifest, nil
}

// ConfigHash produces the canonical (RFC 8785) hash of a configuration
// snapshot. Identical configurations always hash identically regardless of
// key ordering, which anchors resume identity checks.
func ConfigHash(configJSON []byte) (string, error) {
	canonical, err := jsoncanonicalizer.Transform(configJSON)
	if err != nil {
		return "", fmt.Errorf("canonicalize config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

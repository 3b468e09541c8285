package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Default()
	cfg.OfferID = "offer-001"
	cfg.Reference.Script = "Grab the new Gizmo today and save twenty percent."
	cfg.Actors = []Actor{
		{Name: "mia", SceneID: "scene-mia-01"},
		{Name: "jake", SceneID: "scene-jake-01"},
	}
	cfg.LLM.APIKey = "test"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresOfferID(t *testing.T) {
	cfg := validConfig()
	cfg.OfferID = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "offer_id") {
		t.Fatalf("Validate = %v, want offer_id error", err)
	}
}

func TestValidateRequiresActors(t *testing.T) {
	cfg := validConfig()
	cfg.Actors = nil
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "actors") {
		t.Fatalf("Validate = %v, want actors error", err)
	}
}

func TestValidateRejectsDuplicateActors(t *testing.T) {
	cfg := validConfig()
	cfg.Actors = append(cfg.Actors, Actor{Name: "mia", SceneID: "scene-mia-02"})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Validate = %v, want duplicate actor error", err)
	}
}

func TestValidateRequiresSomeVariantKind(t *testing.T) {
	cfg := validConfig()
	cfg.Variants.IdenticalScript = false
	cfg.Variants.RewordedCount = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "variants") {
		t.Fatalf("Validate = %v, want variants error", err)
	}
}

func TestValidateRejectsRewordedWithoutEligibleActors(t *testing.T) {
	cfg := validConfig()
	cfg.Variants.RewordedCount = 2
	for i := range cfg.Actors {
		cfg.Actors[i].IdenticalOnly = true
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "identical_only") {
		t.Fatalf("Validate = %v, want identical_only error", err)
	}
}

func TestValidateRequiresOddEnsembleForMajority(t *testing.T) {
	cfg := validConfig()
	cfg.Rubric.Aggregation = "majority"
	cfg.Rubric.Ensemble = 4
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "odd") {
		t.Fatalf("Validate = %v, want odd ensemble error", err)
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Rubric.AcceptThreshold = 0.5
	cfg.Rubric.ReviewThreshold = 0.7
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "review_threshold") {
		t.Fatalf("Validate = %v, want threshold ordering error", err)
	}
}

func TestValidateRequiresPositiveCap(t *testing.T) {
	cfg := validConfig()
	cfg.Cost.Cap = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "cost.cap") {
		t.Fatalf("Validate = %v, want cap error", err)
	}
}

func TestLoadParsesNormalizesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dicer.toml")
	content := `
offer_id = "  Offer-9 "

[reference]
script = "Buy the thing now."

[[actors]]
name = "  MIA "
scene_id = "scene-1"

[llm]
api_key = "k"

[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.OfferID != "Offer-9" {
		t.Fatalf("OfferID = %q, want trimmed", cfg.OfferID)
	}
	if cfg.Actors[0].Name != "mia" {
		t.Fatalf("actor name = %q, want lowercased", cfg.Actors[0].Name)
	}
	if cfg.Rubric.Aggregation != "majority" {
		t.Fatalf("aggregation default = %q", cfg.Rubric.Aggregation)
	}
	if cfg.Workflow.MaxParallel < 1 {
		t.Fatalf("max_parallel default = %d", cfg.Workflow.MaxParallel)
	}
}

func TestLoadReadsReferenceScriptFromFile(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "winner.txt")
	if err := os.WriteFile(scriptPath, []byte("Buy the thing now.\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	path := filepath.Join(dir, "dicer.toml")
	content := `
offer_id = "offer-9"

[reference]
script = "` + scriptPath + `"

[[actors]]
name = "mia"
scene_id = "scene-1"

[llm]
api_key = "k"

[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reference.Script != "Buy the thing now." {
		t.Fatalf("Reference.Script = %q, want file contents", cfg.Reference.Script)
	}
}

func TestResolveReferenceScript(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "script.txt")
	if err := os.WriteFile(scriptPath, []byte("  From the file.  \n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	emptyPath := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(emptyPath, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	t.Run("file path replaced with trimmed contents", func(t *testing.T) {
		cfg := validConfig()
		cfg.Reference.Script = scriptPath
		if err := cfg.normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.Reference.Script != "From the file." {
			t.Fatalf("Reference.Script = %q", cfg.Reference.Script)
		}
	})

	t.Run("inline text kept verbatim", func(t *testing.T) {
		cfg := validConfig()
		cfg.Reference.Script = "  Order now before the deal ends.  "
		if err := cfg.normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.Reference.Script != "Order now before the deal ends." {
			t.Fatalf("Reference.Script = %q", cfg.Reference.Script)
		}
	})

	t.Run("directory treated as inline text", func(t *testing.T) {
		cfg := validConfig()
		cfg.Reference.Script = dir
		if err := cfg.normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.Reference.Script != dir {
			t.Fatalf("Reference.Script = %q, want untouched", cfg.Reference.Script)
		}
	})

	t.Run("empty file rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Reference.Script = emptyPath
		if err := cfg.normalize(); err == nil {
			t.Fatal("normalize should reject an empty script file")
		}
	})
}

func TestLoadMissingFileFails(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load = %v, want not-found error", err)
	}
}

func TestEnvAPIKeyOverride(t *testing.T) {
	t.Setenv("DICER_LLM_API_KEY", "env-key")
	cfg := validConfig()
	cfg.LLM.APIKey = ""
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("LLM.APIKey = %q, want env override", cfg.LLM.APIKey)
	}
}

func TestEligibleActorsFiltersIdenticalOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Actors[1].IdenticalOnly = true
	eligible := cfg.EligibleActors()
	if len(eligible) != 1 || eligible[0].Name != "mia" {
		t.Fatalf("EligibleActors = %v", eligible)
	}
}

func TestScriptGenLLMFallsBackToShared(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Model = "shared-model"
	cfg.ScriptGen.Model = ""
	merged := cfg.ScriptGenLLM()
	if merged.Model != "shared-model" {
		t.Fatalf("ScriptGenLLM model = %q, want shared fallback", merged.Model)
	}
	cfg.ScriptGen.Model = "specific"
	if merged := cfg.ScriptGenLLM(); merged.Model != "specific" {
		t.Fatalf("ScriptGenLLM model = %q, want specific override", merged.Model)
	}
}

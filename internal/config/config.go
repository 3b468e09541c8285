package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Reference points at the winning creative the run derives variants from.
type Reference struct {
	Video  string `toml:"video"`
	Script string `toml:"script"` // path to a script file or inline text
}

// Actor describes a reusable performer asset. SceneID references the stock
// footage scene; VoiceID optionally pins a synthesis voice.
type Actor struct {
	Name    string `toml:"name"`
	SceneID string `toml:"scene_id"`
	VoiceID string `toml:"voice_id"`
	Style   string `toml:"style"`
	// IdenticalOnly excludes the actor from reworded-script variants.
	IdenticalOnly bool `toml:"identical_only"`
}

// Variants controls how many tasks the matrix builder produces per actor.
type Variants struct {
	IdenticalScript bool `toml:"identical_script"`
	RewordedCount   int  `toml:"reworded_count"`
}

// LLM contains shared connection settings for chat-completion providers.
// Script generation and rubric evaluation fall back to these when their own
// sections leave fields blank.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ScriptGen configures the script-variation provider.
type ScriptGen struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxDivergence  float64 `toml:"max_divergence"`
	// MaxAttempts bounds how many generations are requested before the
	// script_prepare stage fails with script_variance_exceeded.
	MaxAttempts int `toml:"max_attempts"`
}

// Synthesis configures the voice+face synthesis provider.
type Synthesis struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Composition configures b-roll and caption composition.
type Composition struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BRollStyle     string `toml:"b_roll_style"`
	Captions       bool   `toml:"captions"`
}

// Rubric configures ensemble evaluation and classification thresholds.
type Rubric struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	Model           string  `toml:"model"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	Ensemble        int     `toml:"ensemble"`
	Temperature     float64 `toml:"temperature"`
	Aggregation     string  `toml:"aggregation"` // "majority" or "mean"
	AcceptThreshold float64 `toml:"accept_threshold"`
	ReviewThreshold float64 `toml:"review_threshold"`
}

// Rates is the per-provider rate card used for reservation estimates.
type Rates struct {
	ScriptGenPerCall      float64 `toml:"scriptgen_per_call"`
	SynthesisPerCharacter float64 `toml:"synthesis_per_character"`
	CompositionPerVideo   float64 `toml:"composition_per_video"`
	RubricPerCall         float64 `toml:"rubric_per_call"`
}

// Cost holds the run-level spend cap and rate card.
type Cost struct {
	Cap   float64 `toml:"cap"`
	Rates Rates   `toml:"rates"`
}

// Workflow contains concurrency and retry tuning.
type Workflow struct {
	MaxParallel           int `toml:"max_parallel"`
	StageTimeoutSeconds   int `toml:"stage_timeout_seconds"`
	RetryMaxAttempts      int `toml:"retry_max_attempts"`
	RetryBaseDelaySeconds int `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int `toml:"retry_max_delay_seconds"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for dicer.
type Config struct {
	OfferID       string        `toml:"offer_id"`
	Reference     Reference     `toml:"reference"`
	Actors        []Actor       `toml:"actors"`
	Variants      Variants      `toml:"variants"`
	LLM           LLM           `toml:"llm"`
	ScriptGen     ScriptGen     `toml:"scriptgen"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Composition   Composition   `toml:"composition"`
	Rubric        Rubric        `toml:"rubric"`
	Cost          Cost          `toml:"cost"`
	Workflow      Workflow      `toml:"workflow"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dicer/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// ExpandPath resolves ~ prefixes in user-supplied paths.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// CreateSample writes the embedded sample configuration to target.
func CreateSample(target string) error {
	if err := os.WriteFile(target, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Load locates, parses, normalizes, and validates a configuration file.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", fmt.Errorf("config file not found: %s (create with 'dicer config init')", resolvedPath)
	}

	file, err := os.Open(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs("dicer.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// RunsDir returns the directory holding per-run state.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Paths.DataDir, "runs")
}

// RunDir returns the directory for a specific run.
func (c *Config) RunDir(runID string) string {
	return filepath.Join(c.RunsDir(), runID)
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.RunsDir(), 0o755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	return nil
}

// EligibleActors returns the actors that participate in reworded variants.
func (c *Config) EligibleActors() []Actor {
	eligible := make([]Actor, 0, len(c.Actors))
	for _, actor := range c.Actors {
		if actor.IdenticalOnly {
			continue
		}
		eligible = append(eligible, actor)
	}
	return eligible
}

// ScriptGenLLM resolves the script-generation connection, applying the
// shared [llm] fallback.
func (c *Config) ScriptGenLLM() LLM {
	return mergeLLM(LLM{
		APIKey:         c.ScriptGen.APIKey,
		BaseURL:        c.ScriptGen.BaseURL,
		Model:          c.ScriptGen.Model,
		TimeoutSeconds: c.ScriptGen.TimeoutSeconds,
	}, c.LLM)
}

// RubricLLM resolves the rubric-evaluation connection, applying the shared
// [llm] fallback.
func (c *Config) RubricLLM() LLM {
	return mergeLLM(LLM{
		APIKey:         c.Rubric.APIKey,
		BaseURL:        c.Rubric.BaseURL,
		Model:          c.Rubric.Model,
		TimeoutSeconds: c.Rubric.TimeoutSeconds,
	}, c.LLM)
}

func mergeLLM(specific, shared LLM) LLM {
	if specific.APIKey == "" {
		specific.APIKey = shared.APIKey
	}
	if specific.BaseURL == "" {
		specific.BaseURL = shared.BaseURL
	}
	if specific.Model == "" {
		specific.Model = shared.Model
	}
	if specific.TimeoutSeconds <= 0 {
		specific.TimeoutSeconds = shared.TimeoutSeconds
	}
	return specific
}

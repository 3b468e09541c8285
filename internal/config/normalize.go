package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIdentity()
	c.normalizeProviders()
	c.normalizeRubric()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Reference.Video != "" {
		if c.Reference.Video, err = expandPath(c.Reference.Video); err != nil {
			return fmt.Errorf("reference.video: %w", err)
		}
	}
	return c.resolveReferenceScript()
}

// resolveReferenceScript accepts both configuration forms for the reference
// script: a path to a text file, or the script written inline. A value that
// names an existing regular file is replaced with the file's trimmed
// contents; anything else is kept as inline text.
func (c *Config) resolveReferenceScript() error {
	script := strings.TrimSpace(c.Reference.Script)
	c.Reference.Script = script
	if script == "" {
		return nil
	}
	path, err := expandPath(script)
	if err != nil {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reference.script: read %s: %w", path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return fmt.Errorf("reference.script: file %s is empty", path)
	}
	c.Reference.Script = content
	return nil
}

func (c *Config) normalizeIdentity() {
	c.OfferID = strings.TrimSpace(c.OfferID)
	for i := range c.Actors {
		c.Actors[i].Name = strings.ToLower(strings.TrimSpace(c.Actors[i].Name))
		c.Actors[i].SceneID = strings.TrimSpace(c.Actors[i].SceneID)
		c.Actors[i].VoiceID = strings.TrimSpace(c.Actors[i].VoiceID)
		c.Actors[i].Style = strings.TrimSpace(c.Actors[i].Style)
	}
}

func (c *Config) normalizeProviders() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("DICER_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Synthesis.APIKey == "" {
		if value, ok := os.LookupEnv("DICER_SYNTHESIS_API_KEY"); ok {
			c.Synthesis.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Composition.APIKey == "" {
		if value, ok := os.LookupEnv("DICER_COMPOSITION_API_KEY"); ok {
			c.Composition.APIKey = strings.TrimSpace(value)
		}
	}
	if c.ScriptGen.MaxDivergence <= 0 {
		c.ScriptGen.MaxDivergence = defaultMaxDivergence
	}
	if c.ScriptGen.MaxAttempts <= 0 {
		c.ScriptGen.MaxAttempts = defaultScriptGenAttempts
	}
}

func (c *Config) normalizeRubric() {
	c.Rubric.Aggregation = strings.ToLower(strings.TrimSpace(c.Rubric.Aggregation))
	if c.Rubric.Aggregation == "" {
		c.Rubric.Aggregation = defaultAggregation
	}
	if c.Rubric.Ensemble <= 0 {
		c.Rubric.Ensemble = defaultEnsemble
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxParallel <= 0 {
		c.Workflow.MaxParallel = defaultMaxParallel
	}
	if c.Workflow.StageTimeoutSeconds <= 0 {
		c.Workflow.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
	if c.Workflow.RetryMaxAttempts <= 0 {
		c.Workflow.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Workflow.RetryBaseDelaySeconds <= 0 {
		c.Workflow.RetryBaseDelaySeconds = defaultRetryBaseDelay
	}
	if c.Workflow.RetryMaxDelaySeconds <= 0 {
		c.Workflow.RetryMaxDelaySeconds = defaultRetryMaxDelay
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}

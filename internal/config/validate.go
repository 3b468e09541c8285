package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateActors(); err != nil {
		return err
	}
	if err := c.validateVariants(); err != nil {
		return err
	}
	if err := c.validateScriptGen(); err != nil {
		return err
	}
	if err := c.validateRubric(); err != nil {
		return err
	}
	if err := c.validateCost(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if c.OfferID == "" {
		return errors.New("offer_id must be set")
	}
	if strings.TrimSpace(c.Reference.Script) == "" {
		return errors.New("reference.script must be set (file path or inline text)")
	}
	return nil
}

func (c *Config) validateActors() error {
	if len(c.Actors) == 0 {
		return errors.New("at least one [[actors]] entry is required")
	}
	seen := make(map[string]struct{}, len(c.Actors))
	for i, actor := range c.Actors {
		if actor.Name == "" {
			return fmt.Errorf("actors[%d].name must be set", i)
		}
		if actor.SceneID == "" {
			return fmt.Errorf("actors[%d] (%s): scene_id must be set", i, actor.Name)
		}
		if _, dup := seen[actor.Name]; dup {
			return fmt.Errorf("duplicate actor name %q", actor.Name)
		}
		seen[actor.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateVariants() error {
	if c.Variants.RewordedCount < 0 {
		return errors.New("variants.reworded_count must not be negative")
	}
	if !c.Variants.IdenticalScript && c.Variants.RewordedCount == 0 {
		return errors.New("variants: at least one of identical_script or reworded_count must be enabled")
	}
	if c.Variants.RewordedCount > 0 && len(c.EligibleActors()) == 0 {
		return errors.New("variants.reworded_count set but every actor is identical_only")
	}
	return nil
}

func (c *Config) validateScriptGen() error {
	if c.ScriptGen.MaxDivergence <= 0 || c.ScriptGen.MaxDivergence > 1 {
		return errors.New("scriptgen.max_divergence must be in (0, 1]")
	}
	if c.Variants.RewordedCount > 0 && c.ScriptGenLLM().APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/dicer/config.toml"
		}
		return fmt.Errorf("llm.api_key is required for reworded variants. Set DICER_LLM_API_KEY env var or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validateRubric() error {
	if c.Rubric.Ensemble < 1 {
		return errors.New("rubric.ensemble must be at least 1")
	}
	if c.Rubric.Aggregation == "majority" && c.Rubric.Ensemble%2 == 0 {
		return errors.New("rubric.ensemble must be odd for majority aggregation")
	}
	switch c.Rubric.Aggregation {
	case "majority", "mean":
	default:
		return fmt.Errorf("rubric.aggregation must be \"majority\" or \"mean\", got %q", c.Rubric.Aggregation)
	}
	if c.Rubric.Temperature < 0 || c.Rubric.Temperature > 1 {
		return errors.New("rubric.temperature must be between 0 and 1")
	}
	if c.Rubric.AcceptThreshold < 0 || c.Rubric.AcceptThreshold > 1 {
		return errors.New("rubric.accept_threshold must be between 0 and 1")
	}
	if c.Rubric.ReviewThreshold < 0 || c.Rubric.ReviewThreshold > c.Rubric.AcceptThreshold {
		return errors.New("rubric.review_threshold must be between 0 and accept_threshold")
	}
	return nil
}

func (c *Config) validateCost() error {
	if c.Cost.Cap <= 0 {
		return errors.New("cost.cap must be positive")
	}
	rates := c.Cost.Rates
	if rates.ScriptGenPerCall < 0 || rates.SynthesisPerCharacter < 0 || rates.CompositionPerVideo < 0 || rates.RubricPerCall < 0 {
		return errors.New("cost.rates entries must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxParallel < 1 {
		return errors.New("workflow.max_parallel must be at least 1")
	}
	if c.Workflow.RetryMaxAttempts < 1 {
		return errors.New("workflow.retry_max_attempts must be at least 1")
	}
	return nil
}

package main

import (
	"log/slog"
	"strings"
	"sync"

	"dicer/internal/config"
	"dicer/internal/logging"
	"dicer/internal/pipeline"
	"dicer/internal/services/composition"
	"dicer/internal/services/rubric"
	"dicer/internal/services/scriptgen"
	"dicer/internal/services/synthesis"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// buildProviders wires the real provider clients from configuration.
func buildProviders(cfg *config.Config) pipeline.Providers {
	scriptLLM := cfg.ScriptGenLLM()
	rubricLLM := cfg.RubricLLM()
	return pipeline.Providers{
		ScriptGen: scriptgen.NewClient(scriptgen.Config{
			APIKey:         scriptLLM.APIKey,
			BaseURL:        scriptLLM.BaseURL,
			Model:          scriptLLM.Model,
			TimeoutSeconds: scriptLLM.TimeoutSeconds,
		}),
		Synthesis: synthesis.NewClient(synthesis.Config{
			APIKey:         cfg.Synthesis.APIKey,
			BaseURL:        cfg.Synthesis.BaseURL,
			TimeoutSeconds: cfg.Synthesis.TimeoutSeconds,
		}),
		Composer: composition.NewClient(composition.Config{
			APIKey:         cfg.Composition.APIKey,
			BaseURL:        cfg.Composition.BaseURL,
			TimeoutSeconds: cfg.Composition.TimeoutSeconds,
		}),
		Rubric: rubric.NewClient(rubric.Config{
			APIKey:         rubricLLM.APIKey,
			BaseURL:        rubricLLM.BaseURL,
			Model:          rubricLLM.Model,
			TimeoutSeconds: rubricLLM.TimeoutSeconds,
			Temperature:    cfg.Rubric.Temperature,
		}),
	}
}

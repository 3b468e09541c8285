// Package testsupport provides shared helpers for package tests: config
// builders seeded with temp directories, store constructors, and fake
// providers with scriptable behavior.
package testsupport

import (
	"path/filepath"
	"testing"

	"dicer/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated-shape config seeded with a unique temp
// data directory per test and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.OfferID = "offer-001"
	cfg.Reference.Script = "Tired of waiting? Grab the new Gizmo today and save twenty percent. Order now before the deal ends."
	cfg.Actors = []config.Actor{
		{Name: "mia", SceneID: "scene-mia-01", VoiceID: "voice-mia"},
		{Name: "jake", SceneID: "scene-jake-01", VoiceID: "voice-jake"},
	}
	cfg.Variants.IdenticalScript = true
	cfg.Variants.RewordedCount = 1
	cfg.LLM.APIKey = "test"
	cfg.Synthesis.APIKey = "test"
	cfg.Synthesis.BaseURL = "http://127.0.0.1:0"
	cfg.Composition.APIKey = "test"
	cfg.Composition.BaseURL = "http://127.0.0.1:0"
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "dicer")
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithActors replaces the actor list.
func WithActors(actors ...config.Actor) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Actors = actors
	}
}

// WithVariants sets the variant counts.
func WithVariants(identical bool, reworded int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Variants.IdenticalScript = identical
		cfg.Variants.RewordedCount = reworded
	}
}

// WithCap sets the cost cap.
func WithCap(cap float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cost.Cap = cap
	}
}

// WithMaxParallel sets the concurrency bound.
func WithMaxParallel(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxParallel = n
	}
}

// Package config loads, normalizes, and validates dicer configuration.
//
// Configuration is TOML with a section per subsystem: the offer and
// reference creative, the actor catalog, variant counts, rubric evaluation,
// provider connections, the cost cap and rate card, workflow concurrency
// and retry tuning, logging, and notifications. Load applies defaults,
// expands ~ in paths, and pulls API keys from the environment when the file
// leaves them blank.
package config

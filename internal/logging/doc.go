// Package logging centralizes slog construction and the structured field
// vocabulary used across the pipeline. Loggers carry run, task, and stage
// identity extracted from context so provider calls and stage transitions
// can be correlated in both console and JSON output.
package logging

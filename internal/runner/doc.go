// Package runner coordinates a whole run: matrix construction or reload,
// bounded-concurrency dispatch into the pipeline, cap-breach handling,
// classification, and the report artifacts operators consume.
package runner

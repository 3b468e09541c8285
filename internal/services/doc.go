// Package services provides shared plumbing for external provider clients:
// the error taxonomy used to classify failures, context carriers for run,
// task, and stage identity, and the bounded retry policy applied to
// transient provider errors.
//
// Every provider package under services/ wraps its failures with one of the
// exported sentinel markers so the pipeline executor can decide between
// retrying, failing the stage permanently, or aborting the task.
package services

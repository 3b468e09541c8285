// Package runstate persists run, task, and cost state in SQLite.
//
// Each run owns a database under the run directory. The store records the
// configuration snapshot, the full variant task set with a per-stage status
// vector, every stage attempt, and the append-only cost entry log. Stage
// transitions are written before the executor proceeds, which is what makes
// a crashed run resumable without repeating billable provider calls.
//
// The operator-facing manifest is an atomic JSON snapshot of the same
// state; on resume it is validated against an embedded JSON schema so a
// corrupt or truncated manifest surfaces as state corruption instead of a
// silent restart.
package runstate

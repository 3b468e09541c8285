// Package ledger tracks run spend against the configured cap. All paid
// provider calls go through a reserve/commit/release cycle so concurrent
// tasks can never jointly overshoot the cap.
package ledger

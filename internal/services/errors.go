package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid or insufficient run configuration.
	// Fatal to the run, never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrCapExceeded marks a cost-guard refusal. The affected task is
	// aborted; sibling tasks keep running.
	ErrCapExceeded = errors.New("cost cap exceeded")
	// ErrTransient marks provider failures worth retrying (network,
	// timeout, rate limit).
	ErrTransient = errors.New("transient provider error")
	// ErrPermanent marks provider failures that retrying cannot fix
	// (malformed input, policy rejection).
	ErrPermanent = errors.New("permanent provider error")
	// ErrStateCorruption marks an unreadable or inconsistent manifest on
	// resume. Fatal: the run must be surfaced to the operator instead of
	// silently restarted, which would duplicate billable work.
	ErrStateCorruption = errors.New("run state corruption")
)

// Wrap builds an error that includes stage and operation context while
// tagging it with the provided marker for later classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the error should go through the retry policy.
// Context cancellation is never retried even when wrapped as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// Fatal reports whether the error must halt the whole run rather than a
// single task.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrStateCorruption)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

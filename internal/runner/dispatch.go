package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"dicer/internal/ledger"
	"dicer/internal/logging"
	"dicer/internal/pipeline"
	"dicer/internal/runstate"
	"dicer/internal/services"
)

// execute dispatches unresolved tasks under the concurrency bound, waits
// for them to settle, then classifies and finalizes the run.
func (r *Runner) execute(ctx context.Context, store *runstate.Store, run *runstate.Run, runDir string, tasks []*runstate.Task) (*Summary, error) {
	led, err := ledger.New(ctx, store, r.cfg.Cost.Cap, r.logger)
	if err != nil {
		return nil, err
	}
	executor := pipeline.New(r.cfg, store, led, r.providers, r.logger)

	maxParallel := r.cfg.Workflow.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	semaphore := make(chan struct{}, maxParallel)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		capped   bool
		fatalErr error
	)
	halted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return capped || fatalErr != nil
	}

dispatch:
	for _, task := range tasks {
		if task.State().Terminal() {
			continue
		}
		if halted() {
			// Cap breach or fatal error: no new work starts; tasks that
			// never got dispatched are aborted so the report
			// distinguishes them from failures.
			if capped && task.State() == runstate.TaskPending {
				task.AbortReason = pipeline.AbortReasonCapExceeded
				if err := store.UpdateTask(ctx, task); err != nil {
					r.logger.Error("abort pending task", logging.Error(err))
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(task *runstate.Task) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := executor.Execute(ctx, task)
			switch {
			case err == nil:
			case errors.Is(err, services.ErrCapExceeded):
				mu.Lock()
				capped = true
				mu.Unlock()
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			case services.Fatal(err):
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
			default:
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
			}
		}(task)
	}

	wg.Wait()

	// The run can still be snapshotted after cancellation; finalization
	// writes must not be cut short by the same signal that stopped work.
	finalCtx := context.WithoutCancel(ctx)
	summary, err := r.finalize(finalCtx, store, run, runDir, capped, fatalErr, ctx.Err() != nil)
	if err != nil {
		return nil, err
	}
	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, nil
}

func (r *Runner) finalize(ctx context.Context, store *runstate.Store, run *runstate.Run, runDir string, capped bool, fatalErr error, interrupted bool) (*Summary, error) {
	tasks, err := store.ListTasks(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:  run.ID,
		RunDir: runDir,
		Total:  len(tasks),
		Cap:    run.CostCap,
	}
	for _, task := range tasks {
		switch task.State() {
		case runstate.TaskCompleted:
			summary.Completed++
			switch task.Decision {
			case runstate.DecisionAccepted:
				summary.Accepted++
			case runstate.DecisionReview:
				summary.Review++
			case runstate.DecisionRejected:
				summary.Rejected++
			}
		case runstate.TaskFailed:
			summary.Failed++
		case runstate.TaskAborted:
			summary.Aborted++
		}
	}

	total, _, err := store.CostTotals(ctx)
	if err != nil {
		return nil, err
	}
	summary.Spend = total

	switch {
	case interrupted:
		// Leave the run active so a plain resume continues it.
		summary.Status = runstate.RunActive
	case fatalErr != nil:
		run.Status = runstate.RunFailed
	case capped || summary.Aborted > 0:
		// Aborted tasks survive a resume that did not raise the cap; the
		// run stays capped until they actually complete.
		run.Status = runstate.RunCapped
	default:
		run.Status = runstate.RunCompleted
	}
	if !interrupted {
		now := time.Now().UTC()
		run.FinalizedAt = &now
		if err := store.UpdateRun(ctx, run); err != nil {
			return nil, err
		}
		summary.Status = run.Status
	}

	if err := r.saveSnapshot(ctx, store, runDir, run.ID); err != nil {
		return nil, err
	}
	if err := r.writeReports(ctx, store, runDir, run, tasks); err != nil {
		return nil, err
	}

	r.logger.Info("run finished",
		logging.String(logging.FieldRunID, run.ID),
		logging.String("status", string(summary.Status)),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("aborted", summary.Aborted),
		logging.Float64("spend", summary.Spend))

	switch {
	case interrupted:
	case fatalErr != nil:
		if err := r.notifier.NotifyError(ctx, fatalErr, "run "+run.ID); err != nil {
			r.logger.Warn("error notification failed", logging.Error(err))
		}
	case capped || summary.Aborted > 0:
		if err := r.notifier.NotifyRunCapped(ctx, run.ID, summary.Aborted, summary.Spend, summary.Cap); err != nil {
			r.logger.Warn("cap notification failed", logging.Error(err))
		}
	default:
		if err := r.notifier.NotifyRunCompleted(ctx, run.ID, summary.Accepted, summary.Review, summary.Rejected, summary.Failed, summary.Spend); err != nil {
			r.logger.Warn("completion notification failed", logging.Error(err))
		}
	}

	return summary, nil
}

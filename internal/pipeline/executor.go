package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dicer/internal/config"
	"dicer/internal/ledger"
	"dicer/internal/logging"
	"dicer/internal/runstate"
	"dicer/internal/services"
	"dicer/internal/services/composition"
	"dicer/internal/services/rubric"
	"dicer/internal/services/synthesis"
	"dicer/internal/textutil"
)

// AbortReasonCapExceeded is recorded on tasks terminated by the cost guard.
const AbortReasonCapExceeded = "cost_cap_exceeded"

// errScriptVariance signals that every allowed generation attempt produced
// a rewording above the divergence threshold.
var errScriptVariance = services.Wrap(services.ErrPermanent, "script_prepare", "generate", "rewordings exceeded divergence threshold", nil)

// Executor advances one task through its stages in fixed order. Stages run
// strictly sequentially within a task; the coordinator provides cross-task
// concurrency.
type Executor struct {
	cfg       *config.Config
	store     *runstate.Store
	ledger    *ledger.Ledger
	providers Providers
	logger    *slog.Logger

	retry        services.RetryPolicy
	stageTimeout time.Duration
}

// Option customizes an executor.
type Option func(*Executor)

// WithSleeper overrides how retry delays are performed, for tests.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		e.retry.Sleeper = sleeper
	}
}

// New builds an executor with retry and timeout tuning from configuration.
func New(cfg *config.Config, store *runstate.Store, led *ledger.Ledger, providers Providers, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	retry := services.DefaultRetryPolicy()
	if cfg.Workflow.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.Workflow.RetryMaxAttempts
	}
	if cfg.Workflow.RetryBaseDelaySeconds > 0 {
		retry.BaseDelay = time.Duration(cfg.Workflow.RetryBaseDelaySeconds) * time.Second
	}
	if cfg.Workflow.RetryMaxDelaySeconds > 0 {
		retry.MaxDelay = time.Duration(cfg.Workflow.RetryMaxDelaySeconds) * time.Second
	}
	var stageTimeout time.Duration
	if cfg.Workflow.StageTimeoutSeconds > 0 {
		stageTimeout = time.Duration(cfg.Workflow.StageTimeoutSeconds) * time.Second
	}
	executor := &Executor{
		cfg:          cfg,
		store:        store,
		ledger:       led,
		providers:    providers,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		retry:        retry,
		stageTimeout: stageTimeout,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// RetryPolicy exposes the effective policy, mainly for tests.
func (e *Executor) RetryPolicy() services.RetryPolicy {
	return e.retry
}

// Execute runs every remaining stage of the task. It returns nil both for
// completed and for failed tasks (failure is contained to the task and
// recorded in the store); it returns an error only for cap refusals,
// cancellation, and fatal store problems.
func (e *Executor) Execute(ctx context.Context, task *runstate.Task) error {
	ctx = services.WithRunID(ctx, task.RunID)
	ctx = services.WithTaskID(ctx, task.ID)

	for {
		stage, ok := task.NextStage()
		if !ok {
			return nil
		}
		stageCtx := services.WithStage(ctx, string(stage))
		logger := logging.WithContext(stageCtx, e.logger)

		logger.Info("stage start", logging.String(logging.FieldEventType, "stage_start"))
		err := e.runStage(stageCtx, logger, task, stage)
		switch {
		case err == nil:
			logger.Info("stage complete", logging.String(logging.FieldEventType, "stage_complete"))
		case errors.Is(err, services.ErrCapExceeded):
			return e.abortTask(ctx, logger, task, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case services.Fatal(err):
			return err
		default:
			return e.failTask(ctx, logger, task, stage, err)
		}
	}
}

func (e *Executor) runStage(ctx context.Context, logger *slog.Logger, task *runstate.Task, stage runstate.Stage) error {
	switch stage {
	case runstate.StageScriptPrepare:
		return e.scriptPrepare(ctx, logger, task)
	case runstate.StageSynthesize:
		return e.synthesize(ctx, task)
	case runstate.StageCompose:
		return e.compose(ctx, task)
	case runstate.StageEvaluate:
		return e.evaluate(ctx, task)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// scriptPrepare resolves the task's script. Identical tasks already carry
// the reference script; reworded tasks request generations until one lands
// under the divergence threshold or the attempt ceiling is hit.
func (e *Executor) scriptPrepare(ctx context.Context, logger *slog.Logger, task *runstate.Task) error {
	if task.Kind == runstate.KindIdentical {
		return e.markStage(ctx, task, runstate.StageScriptPrepare, runstate.StageSkipped, "identical script")
	}
	if err := e.markStage(ctx, task, runstate.StageScriptPrepare, runstate.StageInProgress, ""); err != nil {
		return err
	}

	maxDivergence := e.cfg.ScriptGen.MaxDivergence
	maxAttempts := e.cfg.ScriptGen.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for generation := 1; generation <= maxAttempts; generation++ {
		var script string
		err := e.billableCall(ctx, task, runstate.StageScriptPrepare, ProviderScriptGen, e.cfg.Cost.Rates.ScriptGenPerCall, func(callCtx context.Context) error {
			generated, err := e.providers.ScriptGen.GenerateVariant(callCtx, e.cfg.Reference.Script, maxDivergence)
			if err != nil {
				return err
			}
			script = generated
			return nil
		})
		if err != nil {
			return err
		}

		divergence := textutil.Divergence(e.cfg.Reference.Script, script)
		if divergence <= maxDivergence {
			task.ScriptText = script
			task.Divergence = divergence
			if err := e.store.UpdateTask(ctx, task); err != nil {
				return err
			}
			return e.markStage(ctx, task, runstate.StageScriptPrepare, runstate.StageSucceeded, fmt.Sprintf("divergence %.3f", divergence))
		}
		logger.Warn("generated script over divergence threshold",
			logging.Int("generation", generation),
			logging.Float64("divergence", divergence),
			logging.Float64("threshold", maxDivergence))
	}
	return errScriptVariance
}

func (e *Executor) synthesize(ctx context.Context, task *runstate.Task) error {
	if err := e.markStage(ctx, task, runstate.StageSynthesize, runstate.StageInProgress, ""); err != nil {
		return err
	}
	estimate := e.cfg.Cost.Rates.SynthesisPerCharacter * float64(len(task.ScriptText))

	var handle string
	err := e.billableCall(ctx, task, runstate.StageSynthesize, ProviderSynthesis, estimate, func(callCtx context.Context) error {
		media, err := e.providers.Synthesis.Synthesize(callCtx, synthesis.Request{
			Actor:      task.ActorName,
			SceneID:    task.SceneID,
			VoiceID:    task.VoiceID,
			Style:      task.Style,
			ScriptText: task.ScriptText,
		})
		if err != nil {
			return err
		}
		handle = media
		return nil
	})
	if err != nil {
		return err
	}

	task.MediaHandle = handle
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	return e.markStage(ctx, task, runstate.StageSynthesize, runstate.StageSucceeded, "")
}

func (e *Executor) compose(ctx context.Context, task *runstate.Task) error {
	if err := e.markStage(ctx, task, runstate.StageCompose, runstate.StageInProgress, ""); err != nil {
		return err
	}

	var handle string
	err := e.billableCall(ctx, task, runstate.StageCompose, ProviderComposition, e.cfg.Cost.Rates.CompositionPerVideo, func(callCtx context.Context) error {
		video, err := e.providers.Composer.Compose(callCtx, composition.Request{
			MediaHandle: task.MediaHandle,
			BRollStyle:  e.cfg.Composition.BRollStyle,
			Captions:    e.cfg.Composition.Captions,
		})
		if err != nil {
			return err
		}
		handle = video
		return nil
	})
	if err != nil {
		return err
	}

	task.VideoHandle = handle
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	return e.markStage(ctx, task, runstate.StageCompose, runstate.StageSucceeded, "")
}

// evaluate invokes the rubric provider once per ensemble member, each call
// billed individually, then aggregates the member scores into the task's
// final score and decision.
func (e *Executor) evaluate(ctx context.Context, task *runstate.Task) error {
	if err := e.markStage(ctx, task, runstate.StageEvaluate, runstate.StageInProgress, ""); err != nil {
		return err
	}

	ensemble := e.cfg.Rubric.Ensemble
	if ensemble <= 0 {
		ensemble = 1
	}
	scores := make([]float64, 0, ensemble)
	for member := 0; member < ensemble; member++ {
		var score float64
		err := e.billableCall(ctx, task, runstate.StageEvaluate, ProviderRubric, e.cfg.Cost.Rates.RubricPerCall, func(callCtx context.Context) error {
			value, err := e.providers.Rubric.Evaluate(callCtx, task.VideoHandle)
			if err != nil {
				return err
			}
			score = value
			return nil
		})
		if err != nil {
			return err
		}
		scores = append(scores, score)
	}

	final, decision, err := rubric.Aggregate(scores, e.cfg.Rubric.Aggregation, rubric.Thresholds{
		Accept: e.cfg.Rubric.AcceptThreshold,
		Review: e.cfg.Rubric.ReviewThreshold,
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "evaluate", "aggregate", "", err)
	}

	task.Score = &final
	task.Decision = decision
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	return e.markStage(ctx, task, runstate.StageEvaluate, runstate.StageSucceeded, fmt.Sprintf("score %.3f (%s)", final, decision))
}

// billableCall runs one provider invocation under the retry policy. Every
// attempt is its own reserve/invoke/commit-or-release cycle with a durable
// attempt record: a crash mid-call has either committed spend or none.
func (e *Executor) billableCall(ctx context.Context, task *runstate.Task, stage runstate.Stage, provider string, estimate float64, invoke func(ctx context.Context) error) error {
	logger := logging.WithContext(ctx, e.logger).With(logging.String(logging.FieldProvider, provider))

	var requestID string
	return services.Retry(ctx, e.retry, func(ctx context.Context, _ int) error {
		requestID = uuid.NewString()
		ctx = services.WithRequestID(ctx, requestID)

		attempt, err := e.store.BeginStageAttempt(ctx, task.ID, stage)
		if err != nil {
			return err
		}

		reservation, err := e.ledger.Reserve(provider, task.ID, estimate)
		if err != nil {
			_ = e.store.FinishStageAttempt(ctx, task.ID, stage, attempt, runstate.StageSkipped, "cost cap refusal")
			return err
		}

		callCtx, cancel := e.stageContext(ctx)
		err = invoke(callCtx)
		cancel()
		if err != nil {
			e.ledger.Release(reservation)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = services.Wrap(services.ErrTransient, string(stage), provider, "stage timeout", err)
			}
			_ = e.store.FinishStageAttempt(ctx, task.ID, stage, attempt, runstate.StageFailed, err.Error())
			return err
		}

		if err := e.ledger.Commit(ctx, reservation, estimate); err != nil {
			_ = e.store.FinishStageAttempt(ctx, task.ID, stage, attempt, runstate.StageFailed, err.Error())
			return err
		}
		return e.store.FinishStageAttempt(ctx, task.ID, stage, attempt, runstate.StageSucceeded, "")
	}, func(attempt int, err error) {
		if err != nil && services.Retryable(err) {
			logger.Warn("stage attempt failed",
				logging.Int("attempt", attempt),
				logging.String(logging.FieldCorrelationID, requestID),
				logging.Error(err))
		}
	})
}

func (e *Executor) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.stageTimeout > 0 {
		return context.WithTimeout(ctx, e.stageTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Executor) markStage(ctx context.Context, task *runstate.Task, stage runstate.Stage, status runstate.StageStatus, detail string) error {
	if err := e.store.UpdateStage(ctx, task.ID, stage, status, detail); err != nil {
		return err
	}
	record := task.StageVector[stage]
	record.Stage = stage
	record.Status = status
	record.Detail = detail
	record.UpdatedAt = time.Now().UTC()
	task.StageVector[stage] = record
	return nil
}

func (e *Executor) failTask(ctx context.Context, logger *slog.Logger, task *runstate.Task, stage runstate.Stage, cause error) error {
	reason := failureReason(cause)
	if err := e.markStage(ctx, task, stage, runstate.StageFailed, reason); err != nil {
		return err
	}
	task.FailureReason = reason
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	logger.Error("task failed",
		logging.String(logging.FieldEventType, "task_failed"),
		logging.String("reason", reason))
	return nil
}

func (e *Executor) abortTask(ctx context.Context, logger *slog.Logger, task *runstate.Task, cause error) error {
	task.AbortReason = AbortReasonCapExceeded
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	logger.Warn("task aborted by cost guard",
		logging.String(logging.FieldEventType, "task_aborted"),
		logging.Error(cause))
	return cause
}

func failureReason(err error) string {
	if errors.Is(err, errScriptVariance) {
		return runstate.ReasonScriptVariance
	}
	return strings.TrimSpace(err.Error())
}

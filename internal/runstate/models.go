package runstate

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies one step of the per-task pipeline.
type Stage string

const (
	StageScriptPrepare Stage = "script_prepare"
	StageSynthesize    Stage = "synthesize"
	StageCompose       Stage = "compose"
	StageEvaluate      Stage = "evaluate"
)

var stageOrder = []Stage{
	StageScriptPrepare,
	StageSynthesize,
	StageCompose,
	StageEvaluate,
}

// Stages returns the fixed pipeline stage order.
func Stages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range stageOrder {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// StageStatus is the lifecycle of a single stage within a task.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageSucceeded  StageStatus = "succeeded"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// Terminal reports whether a stage status is final.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// VariantKind distinguishes verbatim scripts from reworded ones.
type VariantKind string

const (
	KindIdentical VariantKind = "identical"
	KindReworded  VariantKind = "reworded"
)

// TaskState is the overall task lifecycle derived from the stage vector.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskAborted   TaskState = "aborted"
)

// Terminal reports whether a task state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskAborted:
		return true
	default:
		return false
	}
}

// Decision buckets a completed task by its rubric score.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionReview   Decision = "review"
	DecisionRejected Decision = "rejected"
)

// ReasonScriptVariance is the failure reason recorded when generated
// rewordings keep exceeding the divergence threshold.
const ReasonScriptVariance = "script_variance_exceeded"

// StageRecord is one entry of a task's stage status vector.
type StageRecord struct {
	Stage     Stage
	Status    StageStatus
	Attempt   int
	Detail    string
	UpdatedAt time.Time
}

// Task is the unit of work: one actor performing one script variant.
type Task struct {
	ID           string
	RunID        string
	Position     int
	ActorName    string
	SceneID      string
	VoiceID      string
	Style        string
	Kind         VariantKind
	VariantIndex int

	// ScriptText holds the reference script for identical tasks and the
	// generated rewording once script_prepare succeeds.
	ScriptText string
	Divergence float64

	MediaHandle string
	VideoHandle string

	Score         *float64
	Decision      Decision
	FailureReason string
	AbortReason   string

	StageVector map[Stage]StageRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the overall task state from the stage vector and the
// abort/failure markers.
func (t *Task) State() TaskState {
	if t.AbortReason != "" {
		return TaskAborted
	}
	started := false
	allDone := true
	for _, stage := range stageOrder {
		record, ok := t.StageVector[stage]
		if !ok {
			allDone = false
			continue
		}
		switch record.Status {
		case StageFailed:
			return TaskFailed
		case StageSucceeded, StageSkipped:
			started = true
		case StageInProgress:
			return TaskRunning
		default:
			allDone = false
		}
	}
	if allDone && started {
		return TaskCompleted
	}
	if started {
		return TaskRunning
	}
	return TaskPending
}

// NextStage returns the first non-terminal stage, if any. On resume this is
// where the executor picks the task back up.
func (t *Task) NextStage() (Stage, bool) {
	for _, stage := range stageOrder {
		record, ok := t.StageVector[stage]
		if !ok {
			return stage, true
		}
		if !record.Status.Terminal() {
			return stage, true
		}
		if record.Status == StageFailed {
			return "", false
		}
	}
	return "", false
}

// OutputFilename is the conventional name for the composed video.
func (t *Task) OutputFilename() string {
	return fmt.Sprintf("%s_%s_%02d.mp4", t.ActorName, t.Kind, t.VariantIndex)
}

// RunStatus is the lifecycle of the whole run.
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunCompleted RunStatus = "completed"
	RunCapped    RunStatus = "capped"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted run header.
type Run struct {
	ID          string
	OfferID     string
	ConfigJSON  string
	ConfigHash  string
	CostCap     float64
	Status      RunStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt *time.Time
}

// CostEntry is one immutable committed spend record.
type CostEntry struct {
	ID        int64
	Provider  string
	TaskID    string
	Amount    float64
	CreatedAt time.Time
}

package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const taskColumns = "task_id, run_id, position, actor_name, scene_id, voice_id, style, kind, variant_index, script_text, divergence, media_handle, video_handle, score, decision, failure_reason, abort_reason, created_at, updated_at"

// InsertTasks persists a freshly built task matrix along with a pending
// stage vector for every task. Used once per run, inside a transaction so a
// crash never leaves a partial matrix behind.
func (s *Store) InsertTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return errors.New("no tasks to insert")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	for _, task := range tasks {
		task.CreatedAt = now
		task.UpdatedAt = now
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tasks (
                task_id, run_id, position, actor_name, scene_id, voice_id, style,
                kind, variant_index, script_text, divergence, media_handle, video_handle,
                score, decision, failure_reason, abort_reason, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			task.RunID,
			task.Position,
			task.ActorName,
			task.SceneID,
			nullableString(task.VoiceID),
			nullableString(task.Style),
			string(task.Kind),
			task.VariantIndex,
			nullableString(task.ScriptText),
			task.Divergence,
			nullableString(task.MediaHandle),
			nullableString(task.VideoHandle),
			nullableFloat(task.Score),
			nullableString(string(task.Decision)),
			nullableString(task.FailureReason),
			nullableString(task.AbortReason),
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}

		for _, stage := range Stages() {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO task_stages (task_id, stage, status, attempt, detail, updated_at)
                 VALUES (?, ?, ?, 0, NULL, ?)`,
				task.ID,
				string(stage),
				string(StagePending),
				timestamp,
			); err != nil {
				return fmt.Errorf("insert stage vector for %s: %w", task.ID, err)
			}
		}
		if task.StageVector == nil {
			task.StageVector = freshStageVector(now)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

func freshStageVector(now time.Time) map[Stage]StageRecord {
	vector := make(map[Stage]StageRecord, len(stageOrder))
	for _, stage := range stageOrder {
		vector[stage] = StageRecord{Stage: stage, Status: StagePending, UpdatedAt: now}
	}
	return vector
}

// GetTask fetches a task with its stage vector. Returns nil when absent.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadStageVectors(ctx, map[string]*Task{task.ID: task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the run's tasks in matrix order with stage vectors.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	byID := make(map[string]*Task)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadStageVectors(ctx, byID); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask persists mutable task fields. The stage vector is written
// separately through UpdateStage.
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET script_text = ?, divergence = ?, media_handle = ?, video_handle = ?,
             score = ?, decision = ?, failure_reason = ?, abort_reason = ?, updated_at = ?
         WHERE task_id = ?`,
		nullableString(task.ScriptText),
		task.Divergence,
		nullableString(task.MediaHandle),
		nullableString(task.VideoHandle),
		nullableFloat(task.Score),
		nullableString(string(task.Decision)),
		nullableString(task.FailureReason),
		nullableString(task.AbortReason),
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateStage durably records a stage status transition. The executor calls
// this before moving to the task's next stage.
func (s *Store) UpdateStage(ctx context.Context, taskID string, stage Stage, status StageStatus, detail string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE task_stages SET status = ?, detail = ?, updated_at = ? WHERE task_id = ? AND stage = ?`,
		string(status),
		nullableString(detail),
		now.Format(time.RFC3339Nano),
		taskID,
		string(stage),
	)
	if err != nil {
		return fmt.Errorf("update stage %s/%s: %w", taskID, stage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stage rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update stage %s/%s: no such stage row", taskID, stage)
	}
	return nil
}

// BeginStageAttempt records the start of a stage attempt and returns the
// 1-based attempt number. Prior terminal attempt records are never erased.
func (s *Store) BeginStageAttempt(ctx context.Context, taskID string, stage Stage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attempt tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior int
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(attempt), 0) FROM stage_attempts WHERE task_id = ? AND stage = ?`,
		taskID, string(stage),
	).Scan(&prior); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}

	attempt := prior + 1
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO stage_attempts (task_id, stage, attempt, status, detail, started_at)
         VALUES (?, ?, ?, ?, NULL, ?)`,
		taskID, string(stage), attempt, string(StageInProgress), now,
	); err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE task_stages SET attempt = ?, updated_at = ? WHERE task_id = ? AND stage = ?`,
		attempt, now, taskID, string(stage),
	); err != nil {
		return 0, fmt.Errorf("update stage attempt counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attempt tx: %w", err)
	}
	return attempt, nil
}

// FinishStageAttempt resolves an attempt record with its outcome.
func (s *Store) FinishStageAttempt(ctx context.Context, taskID string, stage Stage, attempt int, status StageStatus, detail string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_attempts SET status = ?, detail = ?, finished_at = ?
         WHERE task_id = ? AND stage = ? AND attempt = ?`,
		string(status),
		nullableString(detail),
		now,
		taskID,
		string(stage),
		attempt,
	)
	if err != nil {
		return fmt.Errorf("finish attempt %s/%s#%d: %w", taskID, stage, attempt, err)
	}
	return nil
}

func (s *Store) loadStageVectors(ctx context.Context, tasks map[string]*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id, stage, status, attempt, detail, updated_at FROM task_stages`,
	)
	if err != nil {
		return fmt.Errorf("query stage vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			taskID     string
			stageStr   string
			statusStr  string
			attempt    int
			detail     sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&taskID, &stageStr, &statusStr, &attempt, &detail, &updatedRaw); err != nil {
			return fmt.Errorf("scan stage vector: %w", err)
		}
		task, ok := tasks[taskID]
		if !ok {
			continue
		}
		if task.StageVector == nil {
			task.StageVector = make(map[Stage]StageRecord, len(stageOrder))
		}
		record := StageRecord{
			Stage:   Stage(stageStr),
			Status:  StageStatus(statusStr),
			Attempt: attempt,
			Detail:  detail.String,
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			record.UpdatedAt = updated
		}
		task.StageVector[record.Stage] = record
	}
	return rows.Err()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task          Task
		voiceID       sql.NullString
		style         sql.NullString
		kindStr       string
		scriptText    sql.NullString
		mediaHandle   sql.NullString
		videoHandle   sql.NullString
		score         sql.NullFloat64
		decision      sql.NullString
		failureReason sql.NullString
		abortReason   sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&task.ID,
		&task.RunID,
		&task.Position,
		&task.ActorName,
		&task.SceneID,
		&voiceID,
		&style,
		&kindStr,
		&task.VariantIndex,
		&scriptText,
		&task.Divergence,
		&mediaHandle,
		&videoHandle,
		&score,
		&decision,
		&failureReason,
		&abortReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task.VoiceID = voiceID.String
	task.Style = style.String
	task.Kind = VariantKind(kindStr)
	task.ScriptText = scriptText.String
	task.MediaHandle = mediaHandle.String
	task.VideoHandle = videoHandle.String
	if score.Valid {
		value := score.Float64
		task.Score = &value
	}
	task.Decision = Decision(decision.String)
	task.FailureReason = failureReason.String
	task.AbortReason = abortReason.String
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

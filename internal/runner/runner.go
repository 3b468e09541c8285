package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dicer/internal/config"
	"dicer/internal/logging"
	"dicer/internal/matrix"
	"dicer/internal/notifications"
	"dicer/internal/pipeline"
	"dicer/internal/runstate"
	"dicer/internal/services"
)

// LockFilename guards a run directory against concurrent writers.
const LockFilename = ".dicer.lock"

// Runner coordinates one run end to end.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	notifier  notifications.Service
	providers pipeline.Providers
}

// New builds a runner. A nil notifier gets the config-driven default.
func New(cfg *config.Config, logger *slog.Logger, notifier notifications.Service, providers pipeline.Providers) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Runner{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "runner"),
		notifier:  notifier,
		providers: providers,
	}
}

// Summary is the terminal report of a run, consumed by the CLI.
type Summary struct {
	RunID     string
	RunDir    string
	Status    runstate.RunStatus
	Total     int
	Completed int
	Failed    int
	Aborted   int
	Accepted  int
	Review    int
	Rejected  int
	Spend     float64
	Cap       float64
}

// Plan builds the task matrix without creating any state, for dry runs.
func (r *Runner) Plan() ([]*runstate.Task, error) {
	return matrix.Build(r.cfg, "dry-run")
}

// Start creates a fresh run and drives it to a terminal or interrupted
// state.
func (r *Runner) Start(ctx context.Context) (*Summary, error) {
	runID := newRunID(r.cfg.OfferID)
	runDir := r.cfg.RunDir(runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	unlock, err := acquireLock(runDir)
	if err != nil {
		return nil, err
	}
	defer unlock()
	r.attachRunLog(runDir)

	store, err := runstate.Open(runDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	configJSON, err := json.Marshal(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}
	configHash, err := runstate.ConfigHash(configJSON)
	if err != nil {
		return nil, err
	}

	run := &runstate.Run{
		ID:         runID,
		OfferID:    r.cfg.OfferID,
		ConfigJSON: string(configJSON),
		ConfigHash: configHash,
		CostCap:    r.cfg.Cost.Cap,
		Status:     runstate.RunActive,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	tasks, err := matrix.Build(r.cfg, runID)
	if err != nil {
		return nil, err
	}
	if err := store.InsertTasks(ctx, tasks); err != nil {
		return nil, err
	}
	if err := r.saveSnapshot(ctx, store, runDir, runID); err != nil {
		return nil, err
	}

	r.logger.Info("run created",
		logging.String(logging.FieldRunID, runID),
		logging.Int("tasks", len(tasks)),
		logging.Float64("cap", r.cfg.Cost.Cap))
	if err := r.notifier.NotifyRunStarted(ctx, runID, len(tasks)); err != nil {
		r.logger.Warn("run-start notification failed", logging.Error(err))
	}

	return r.execute(ctx, store, run, runDir, tasks)
}

// Resume reloads an existing run and drives its unresolved tasks. Aborted
// tasks rejoin only when the configured cap exceeds the cap recorded at
// abort time.
func (r *Runner) Resume(ctx context.Context, runID string) (*Summary, error) {
	runDir := r.cfg.RunDir(runID)
	if !runstate.Exists(runDir) {
		return nil, fmt.Errorf("run %s not found under %s", runID, r.cfg.RunsDir())
	}

	unlock, err := acquireLock(runDir)
	if err != nil {
		return nil, err
	}
	defer unlock()
	r.attachRunLog(runDir)

	// Validate the operator-facing snapshot before touching the database:
	// a corrupt snapshot means the run must not silently restart.
	if _, err := runstate.LoadManifest(runDir); err != nil {
		return nil, err
	}

	store, err := runstate.Open(runDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrStateCorruption, "runner", "resume", "run header missing from database", nil)
	}

	capRaised := r.cfg.Cost.Cap > run.CostCap
	run.CostCap = r.cfg.Cost.Cap
	run.Status = runstate.RunActive
	run.FinalizedAt = nil
	if err := store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	tasks, err := store.ListTasks(ctx, runID)
	if err != nil {
		return nil, err
	}
	resumed := 0
	for _, task := range tasks {
		if task.AbortReason == "" {
			continue
		}
		if capRaised {
			task.AbortReason = ""
			if err := store.UpdateTask(ctx, task); err != nil {
				return nil, err
			}
			resumed++
		}
	}

	r.logger.Info("run resumed",
		logging.String(logging.FieldRunID, runID),
		logging.Bool("cap_raised", capRaised),
		logging.Int("aborted_resumed", resumed))

	return r.execute(ctx, store, run, runDir, tasks)
}

func (r *Runner) saveSnapshot(ctx context.Context, store *runstate.Store, runDir, runID string) error {
	snapshot, err := store.Snapshot(ctx, runID)
	if err != nil {
		return err
	}
	return runstate.SaveManifest(runDir, snapshot)
}

// attachRunLog switches the runner onto a logger that also writes into the
// run directory, so each run keeps its own log file.
func (r *Runner) attachRunLog(runDir string) {
	runLogger, err := logging.NewForRun(r.cfg.Logging.Level, r.cfg.Logging.Format, runDir)
	if err != nil {
		r.logger.Warn("run log unavailable, keeping process logger", logging.Error(err))
		return
	}
	r.logger = logging.NewComponentLogger(runLogger, "runner")
}

func acquireLock(runDir string) (func(), error) {
	lock := flock.New(filepath.Join(runDir, LockFilename))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("run directory %s is locked by another dicer process", runDir)
	}
	return func() { _ = lock.Unlock() }, nil
}

func newRunID(offerID string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(offerID), " ", "-"))
	return fmt.Sprintf("%s-%s-%s",
		slug,
		time.Now().UTC().Format("20060102-150405"),
		uuid.NewString()[:8])
}

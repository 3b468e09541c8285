package runner

import (
	"context"
	"fmt"
	"os"
	"sort"

	"dicer/internal/config"
	"dicer/internal/runstate"
)

// RunInfo summarizes one run directory for listings.
type RunInfo struct {
	RunID     string
	OfferID   string
	Status    runstate.RunStatus
	Tasks     int
	Completed int
	Spend     float64
	Cap       float64
	CreatedAt string
}

// ListRuns scans the runs directory and summarizes every run found, newest
// first. Directories without a state database are skipped.
func ListRuns(ctx context.Context, cfg *config.Config) ([]RunInfo, error) {
	entries, err := os.ReadDir(cfg.RunsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runDir := cfg.RunDir(entry.Name())
		if !runstate.Exists(runDir) {
			continue
		}
		info, err := describeRun(ctx, runDir, entry.Name())
		if err != nil {
			// An unreadable run should not hide the rest of the listing.
			infos = append(infos, RunInfo{RunID: entry.Name(), Status: "unreadable"})
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt > infos[j].CreatedAt })
	return infos, nil
}

func describeRun(ctx context.Context, runDir, runID string) (RunInfo, error) {
	store, err := runstate.Open(runDir)
	if err != nil {
		return RunInfo{}, err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return RunInfo{}, err
	}
	if run == nil {
		return RunInfo{}, fmt.Errorf("run header missing in %s", runDir)
	}
	tasks, err := store.ListTasks(ctx, runID)
	if err != nil {
		return RunInfo{}, err
	}
	total, _, err := store.CostTotals(ctx)
	if err != nil {
		return RunInfo{}, err
	}

	info := RunInfo{
		RunID:     run.ID,
		OfferID:   run.OfferID,
		Status:    run.Status,
		Tasks:     len(tasks),
		Spend:     total,
		Cap:       run.CostCap,
		CreatedAt: run.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	for _, task := range tasks {
		if task.State() == runstate.TaskCompleted {
			info.Completed++
		}
	}
	return info, nil
}

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dicer/internal/runstate"
)

// CostReportFilename is the per-run spend report.
const CostReportFilename = "cost_report.json"

// CostReport is the operator-facing spend breakdown.
type CostReport struct {
	RunID       string             `json:"run_id"`
	Cap         float64            `json:"cap"`
	Total       float64            `json:"total"`
	Utilization float64            `json:"utilization"`
	ByProvider  map[string]float64 `json:"by_provider"`
	Entries     int                `json:"entries"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// BuildCostReport assembles the spend report from the store.
func BuildCostReport(ctx context.Context, store *runstate.Store, run *runstate.Run) (*CostReport, error) {
	entries, err := store.CostEntries(ctx)
	if err != nil {
		return nil, err
	}
	total, byProvider, err := store.CostTotals(ctx)
	if err != nil {
		return nil, err
	}
	if byProvider == nil {
		byProvider = map[string]float64{}
	}
	report := &CostReport{
		RunID:       run.ID,
		Cap:         run.CostCap,
		Total:       total,
		ByProvider:  byProvider,
		Entries:     len(entries),
		GeneratedAt: time.Now().UTC(),
	}
	if run.CostCap > 0 {
		report.Utilization = total / run.CostCap
	}
	return report, nil
}

// writeReports emits the cost report and the three classification lists
// alongside the manifest.
func (r *Runner) writeReports(ctx context.Context, store *runstate.Store, runDir string, run *runstate.Run, tasks []*runstate.Task) error {
	report, err := BuildCostReport(ctx, store, run)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cost report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, CostReportFilename), payload, 0o644); err != nil {
		return fmt.Errorf("write cost report: %w", err)
	}

	buckets := map[runstate.Decision][]string{
		runstate.DecisionAccepted: nil,
		runstate.DecisionReview:   nil,
		runstate.DecisionRejected: nil,
	}
	for _, task := range tasks {
		if task.State() != runstate.TaskCompleted || task.Decision == "" {
			continue
		}
		line := task.ID
		if task.VideoHandle != "" {
			line = task.ID + "\t" + task.OutputFilename()
		}
		buckets[task.Decision] = append(buckets[task.Decision], line)
	}
	for decision, lines := range buckets {
		name := filepath.Join(runDir, string(decision)+".txt")
		content := ""
		if len(lines) > 0 {
			content = strings.Join(lines, "\n") + "\n"
		}
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s list: %w", decision, err)
		}
	}
	return nil
}

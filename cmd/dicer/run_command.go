package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dicer/internal/runner"
	"dicer/internal/runstate"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a fresh variant run from the configured offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r := runner.New(cfg, ctx.ensureLogger(), nil, buildProviders(cfg))

			if dryRun {
				tasks, err := r.Plan()
				if err != nil {
					return err
				}
				return printPlan(cmd, ctx, tasks)
			}

			summary, err := r.Start(cmd.Context())
			if summary != nil {
				if printErr := printSummary(cmd, ctx, summary); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the task matrix without executing or spending")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted or capped run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r := runner.New(cfg, ctx.ensureLogger(), nil, buildProviders(cfg))

			summary, err := r.Resume(cmd.Context(), args[0])
			if summary != nil {
				if printErr := printSummary(cmd, ctx, summary); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}
}

func printPlan(cmd *cobra.Command, ctx *commandContext, tasks []*runstate.Task) error {
	out := cmd.OutOrStdout()
	if ctx.jsonOutput() {
		type planEntry struct {
			TaskID       string `json:"task_id"`
			Actor        string `json:"actor"`
			Kind         string `json:"kind"`
			VariantIndex int    `json:"variant_index"`
			OutputFile   string `json:"output_file"`
		}
		entries := make([]planEntry, 0, len(tasks))
		for _, task := range tasks {
			entries = append(entries, planEntry{
				TaskID:       task.ID,
				Actor:        task.ActorName,
				Kind:         string(task.Kind),
				VariantIndex: task.VariantIndex,
				OutputFile:   task.OutputFilename(),
			})
		}
		return printJSON(out, entries)
	}

	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			task.ActorName,
			string(task.Kind),
			fmt.Sprintf("%d", task.VariantIndex),
			task.OutputFilename(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Task", "Actor", "Kind", "Index", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d tasks planned (dry run, nothing executed)\n", len(tasks))
	return nil
}

func printSummary(cmd *cobra.Command, ctx *commandContext, summary *runner.Summary) error {
	out := cmd.OutOrStdout()
	if ctx.jsonOutput() {
		return printJSON(out, map[string]any{
			"run_id":    summary.RunID,
			"run_dir":   summary.RunDir,
			"status":    summary.Status,
			"total":     summary.Total,
			"completed": summary.Completed,
			"failed":    summary.Failed,
			"aborted":   summary.Aborted,
			"accepted":  summary.Accepted,
			"review":    summary.Review,
			"rejected":  summary.Rejected,
			"spend":     summary.Spend,
			"cap":       summary.Cap,
		})
	}

	rows := [][]string{
		{"Run", summary.RunID},
		{"Status", string(summary.Status)},
		{"Tasks", fmt.Sprintf("%d total / %d completed / %d failed / %d aborted", summary.Total, summary.Completed, summary.Failed, summary.Aborted)},
		{"Classification", fmt.Sprintf("%d accepted / %d review / %d rejected", summary.Accepted, summary.Review, summary.Rejected)},
		{"Spend", fmt.Sprintf("%s of %s cap", formatUSD(summary.Spend), formatUSD(summary.Cap))},
		{"Artifacts", summary.RunDir},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"dicer/internal/runner"
	"dicer/internal/runstate"
	"dicer/internal/services"
)

func newCostCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cost <run-id>",
		Short: "Show a run's spend against its cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runID := args[0]
			runDir := cfg.RunDir(runID)
			if !runstate.Exists(runDir) {
				return fmt.Errorf("run %s not found under %s", runID, cfg.RunsDir())
			}

			store, err := runstate.Open(runDir)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if run == nil {
				return services.Wrap(services.ErrStateCorruption, "cost", "load", "run header missing", nil)
			}

			report, err := runner.BuildCostReport(cmd.Context(), store, run)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				return printJSON(out, report)
			}

			providers := make([]string, 0, len(report.ByProvider))
			for provider := range report.ByProvider {
				providers = append(providers, provider)
			}
			sort.Strings(providers)

			rows := make([][]string, 0, len(providers)+2)
			for _, provider := range providers {
				rows = append(rows, []string{provider, formatUSD(report.ByProvider[provider])})
			}
			rows = append(rows, []string{"total", formatUSD(report.Total)})
			rows = append(rows, []string{"cap", formatUSD(report.Cap)})
			fmt.Fprintln(out, renderTable(
				[]string{"Provider", "Spend"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Utilization: %.1f%% across %d entries\n", report.Utilization*100, report.Entries)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dicer/internal/runner"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List runs and their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			infos, err := runner.ListRuns(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				return printJSON(out, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.RunID,
					info.OfferID,
					string(info.Status),
					fmt.Sprintf("%d/%d", info.Completed, info.Tasks),
					formatUSD(info.Spend),
					formatUSD(info.Cap),
					info.CreatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Offer", "Status", "Done", "Spend", "Cap", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

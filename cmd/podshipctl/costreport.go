package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCostReportCommand(appRef **app) *cobra.Command {
	var episodeFlag string

	cmd := &cobra.Command{
		Use:   "cost-report",
		Short: "Show per-stage cost totals, optionally scoped to one episode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *appRef

			var episodeID *int64
			if episodeFlag != "" {
				id, err := strconv.ParseInt(episodeFlag, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid --episode value %q: %w", episodeFlag, err)
				}
				episodeID = &id
			}

			rows, err := a.store.CostReport(cmd.Context(), episodeID)
			if err != nil {
				return err
			}

			headers := []string{"stage", "runs", "total cost", "last run"}
			aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignLeft}
			tableRows := make([][]string, 0, len(rows))
			var grandTotal float64
			for _, row := range rows {
				grandTotal += row.TotalCost
				lastRun := ""
				if !row.LastRunAt.IsZero() {
					lastRun = row.LastRunAt.Format("2006-01-02 15:04:05")
				}
				tableRows = append(tableRows, []string{
					row.Stage,
					fmt.Sprintf("%d", row.RunCount),
					fmt.Sprintf("$%.4f", row.TotalCost),
					lastRun,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(headers, tableRows, aligns))
			fmt.Fprintf(out, "grand total: $%.4f\n", grandTotal)
			return nil
		},
	}
	cmd.Flags().StringVar(&episodeFlag, "episode", "", "Scope the report to a single episode id")
	return cmd
}

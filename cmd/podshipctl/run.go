package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"podship/internal/orchestrator"
)

func newRunCommand(appRef **app) *cobra.Command {
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <episode-id>",
		Short: "Walk one episode through its stage plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q: %w", args[0], err)
			}
			a := *appRef
			report, err := a.orch.RunEpisode(cmd.Context(), episodeID, force, dryRun || a.cfg.DryRun)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Bypass idempotency checks and re-run every step")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip external calls and output writes")
	return cmd
}

func newRunPendingCommand(appRef **app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run-pending",
		Short: "Run every actionable episode not blocked by an open review gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *appRef
			reports, err := a.orch.RunPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, report := range reports {
				printReport(cmd, report)
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no actionable episodes")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of episodes to run (0 = unlimited)")
	return cmd
}

func printReport(cmd *cobra.Command, report orchestrator.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "episode %d (%s)\n", report.EpisodeID, report.Title)

	headers := []string{"stage", "result", "detail", "cost"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}
	rows := make([][]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		rows = append(rows, []string{
			step.StageID,
			string(step.Result.Status),
			step.Result.Detail,
			fmt.Sprintf("$%.4f", step.Result.CostUSD),
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))

	if report.Success {
		fmt.Fprintf(out, "total cost: $%.4f\n", report.TotalCost)
	} else {
		fmt.Fprintf(out, "total cost: $%.4f, terminal error: %s\n", report.TotalCost, report.TerminalErr)
	}
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newReviewCommand(appRef **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List and settle review gate tasks",
	}
	cmd.AddCommand(newReviewListCommand(appRef))
	cmd.AddCommand(newReviewApproveCommand(appRef))
	cmd.AddCommand(newReviewRejectCommand(appRef))
	cmd.AddCommand(newReviewRequestChangesCommand(appRef))
	return cmd
}

func newReviewListCommand(appRef **app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every open review task across all episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *appRef
			tasks, err := a.store.ListOpenReviewTasks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no open review tasks")
				return nil
			}
			headers := []string{"task id", "episode", "stage", "status", "created"}
			aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft}
			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				rows = append(rows, []string{
					fmt.Sprintf("%d", task.ID),
					fmt.Sprintf("%d", task.EpisodeID),
					task.Stage,
					string(task.Status),
					task.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}
}

func newReviewApproveCommand(appRef **app) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a pending review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			a := *appRef
			decision, err := a.gates.Approve(cmd.Context(), taskID, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s\n", taskID, decision.Decision)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Optional note recorded with the decision")
	return cmd
}

func newReviewRejectCommand(appRef **app) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "reject <task-id>",
		Short: "Reject a pending review task and revert its episode's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			a := *appRef
			decision, err := a.gates.Reject(cmd.Context(), taskID, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s\n", taskID, decision.Decision)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Reason recorded with the decision")
	return cmd
}

func newReviewRequestChangesCommand(appRef **app) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "request-changes <task-id>",
		Short: "Request changes on a pending review task, carrying notes into the next re-run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if notes == "" {
				return fmt.Errorf("--notes is required for request-changes")
			}
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			a := *appRef
			decision, err := a.gates.RequestChanges(cmd.Context(), taskID, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s\n", taskID, decision.Decision)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Feedback folded into the reviewed stage's next prompt render")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(appRef **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize episode counts by status and pending review gates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *appRef
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			episodes, err := a.store.ListAllEpisodes(cmd.Context())
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			var failed, costLimit int
			for _, ep := range episodes {
				counts[string(ep.Status)]++
				switch ep.Status {
				case "FAILED":
					failed++
				case "COST_LIMIT":
					costLimit++
				}
			}

			for _, line := range renderSectionHeader("episodes", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(episodes) == 0 {
				fmt.Fprintln(out, renderStatusLine("total", statusInfo, "no episodes tracked", colorize))
			}
			for _, status := range episodeStatusOrder {
				n, ok := counts[status]
				if !ok {
					continue
				}
				kind := statusInfo
				switch status {
				case "FAILED", "COST_LIMIT":
					kind = statusError
				case "COMPLETED", "PUBLISHED":
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine(status, kind, fmt.Sprintf("%d", n), colorize))
			}

			pending, err := a.gates.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("review gates", colorize) {
				fmt.Fprintln(out, line)
			}
			pendingKind := statusOK
			if pending > 0 {
				pendingKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("pending tasks", pendingKind, fmt.Sprintf("%d", pending), colorize))

			return nil
		},
	}
	return cmd
}

var episodeStatusOrder = []string{
	"NEW", "DOWNLOADED", "TRANSCRIBED", "CORRECTED", "TRANSLATED", "ADAPTED",
	"CHAPTERIZED", "IMAGES_GENERATED", "TTS_DONE", "RENDERED", "APPROVED",
	"PUBLISHED", "COMPLETED", "FAILED", "COST_LIMIT",
}

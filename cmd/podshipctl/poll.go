package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podship/internal/feed"
)

func newPollCommand(appRef **app) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll every enabled channel's feed for new episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *appRef
			channels, err := a.store.ListEnabledChannels(cmd.Context())
			if err != nil {
				return err
			}

			detector := feed.NewDetector(a.store)
			since := time.Now().Add(-time.Duration(a.cfg.FeedPollInterval) * time.Second)

			out := cmd.OutOrStdout()
			var total int
			for _, channel := range channels {
				created, err := detector.DetectNewEpisodes(cmd.Context(), channel, feed.NewRSSFeedSource(channel.FeedURL), since)
				if err != nil {
					fmt.Fprintf(out, "%s: poll failed: %v\n", channel.Name, err)
					continue
				}
				for _, ep := range created {
					fmt.Fprintf(out, "%s: registered episode %d (%s)\n", channel.Name, ep.ID, ep.Title)
				}
				total += len(created)
			}
			fmt.Fprintf(out, "%d new episode(s) registered across %d channel(s)\n", total, len(channels))
			return nil
		},
	}
}

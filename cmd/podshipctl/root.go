package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var a *app

	rootCmd := &cobra.Command{
		Use:           "podshipctl",
		Short:         "Podcast pipeline control CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			built, err := buildApp(configFlag)
			if err != nil {
				return err
			}
			a = built
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(&a))
	rootCmd.AddCommand(newRunPendingCommand(&a))
	rootCmd.AddCommand(newPollCommand(&a))
	rootCmd.AddCommand(newStatusCommand(&a))
	rootCmd.AddCommand(newCostReportCommand(&a))
	rootCmd.AddCommand(newReviewCommand(&a))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

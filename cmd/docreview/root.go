package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "docreview",
		Short:         "Reconcile human review corrections into extracted document fields",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $DOCREVIEW_CONFIG)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newReviewInputCommand(ctx))
	rootCmd.AddCommand(newAggregateCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newTemplateCheckCommand())

	return rootCmd
}

// shouldSkipConfig reports whether cmd runs without loading configuration.
func shouldSkipConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "template-check", "completion":
		return true
	}
	return false
}

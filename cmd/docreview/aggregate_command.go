package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/storage"
)

func newAggregateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <execution-id>",
		Short: "Copy the staged extraction results of an execution into the aggregated layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			store, closeStore, err := ctx.openStore(log)
			if err != nil {
				return err
			}
			defer closeStore()

			copied, err := storage.Aggregate(cmd.Context(), store, args[0], log)
			if len(copied) > 0 {
				rows := make([][]string, 0, len(copied))
				for _, c := range copied {
					rows = append(rows, []string{c.From, c.To})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Staged", "Aggregated"}, rows, nil))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts aggregated for %s\n", len(copied), args[0])
			return nil
		},
	}
}

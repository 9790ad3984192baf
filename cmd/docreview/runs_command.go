package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/ledger"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs <execution-id>",
		Short: "List recorded reconciliation runs of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ctx.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.ListByExecution(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if runs == nil {
					runs = []ledger.Run{}
				}
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for %s\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	return cmd
}

func renderRuns(runs []ledger.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Status,
			strconv.Itoa(r.FieldsConsidered),
			strconv.Itoa(len(r.ArtifactsModified)),
			strings.Join(r.Unresolved, ", "),
			r.UpdatedAt.Local().Format(time.DateTime),
			r.Error,
		})
	}
	return renderTable(
		[]string{"Run", "Status", "Fields", "Modified", "Unresolved", "Updated", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	)
}

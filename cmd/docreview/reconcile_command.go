package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/pipeline"
	"github.com/dgallion1/docreview/internal/reconcile"
	"github.com/dgallion1/docreview/internal/review"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "reconcile <session-output.json>",
		Short: "Apply the corrections of a review session output to its execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read session output: %w", err)
			}
			session, err := review.ParseSessionOutput(data, log)
			if err != nil {
				return err
			}
			if err := session.Batch.Validate(); err != nil {
				return err
			}

			store, closeStore, err := ctx.openStore(log)
			if err != nil {
				return err
			}
			defer closeStore()
			l, err := ctx.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			job := pipeline.NewJob(session)
			pipeline.NewWorker(store, l, log).Process(cmd.Context(), job)
			snap := job.Snapshot()

			if jsonOut {
				if err := writeJSON(cmd, map[string]any{"job": snap, "result": job.Result()}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s for %s: %s\n", snap.ID, snap.ExecutionID, snap.Status)
				if res := job.Result(); res != nil && len(res.Outcomes) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(res.Outcomes))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d fields considered, %d artifacts modified, %d unresolved\n",
					snap.Progress.FieldsConsidered, len(snap.Progress.ArtifactsModified), len(snap.Progress.Unresolved))
			}

			if snap.Status == pipeline.StatusFailed {
				return fmt.Errorf("reconciliation failed: %v", snap.Progress.Errors)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the job snapshot and result as JSON")
	return cmd
}

func renderOutcomes(outcomes []reconcile.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		page := ""
		if o.Page > 0 {
			page = strconv.Itoa(o.Page)
		}
		via := "declared page"
		if o.Fallback {
			via = "fallback"
		}
		if o.Status != reconcile.StatusUpdated {
			via = o.Error
		}
		rows = append(rows, []string{o.Field, string(o.Status), page, o.Artifact, via})
	}
	return renderTable(
		[]string{"Field", "Status", "Page", "Artifact", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/pipeline"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/reviewui"
	"github.com/dgallion1/docreview/internal/source"
)

func newReviewInputCommand(ctx *commandContext) *cobra.Command {
	var (
		threshold  float64
		sourcePath string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "review-input <execution-id>",
		Short: "Print the review payload for the low-confidence fields of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.ConfidenceThreshold
			}
			if threshold <= 0 || threshold > 1 {
				return fmt.Errorf("threshold must be within (0, 1], got %v", threshold)
			}

			pageCount := 0
			if sourcePath != "" {
				pageCount, err = source.PageCountFile(cmd.Context(), sourcePath, cfg.PDFFallbackPdfinfo)
				if err != nil {
					return fmt.Errorf("count source pages: %w", err)
				}
			}

			store, closeStore, err := ctx.openStore(log)
			if err != nil {
				return err
			}
			defer closeStore()

			in, err := pipeline.ReviewInput(cmd.Context(), store, args[0], threshold, pageCount, log)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				if in == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "No fields need review.")
					return nil
				}
				return writeJSON(cmd, map[string]any{
					"loop_name": review.LoopName(time.Now()),
					"input":     in,
				})
			case "markdown":
				fmt.Fprint(cmd.OutOrStdout(), reviewui.Markdown(in))
				return nil
			case "html":
				page, err := reviewui.RenderSheet(in)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(page)
				return err
			default:
				return fmt.Errorf("unknown format %q (want json, markdown or html)", format)
			}
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Confidence below which fields are reviewed (default from config)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "Source PDF to check artifact pages against")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, markdown or html")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/reviewui"
)

func newTemplateCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "template-check <template.html>",
		Short: "Check that a review task template has a form reviewers can submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := reviewui.LoadTemplateFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d bytes, task UI %s)\n", args[0], len(tmpl), reviewui.TaskUIName)
			return nil
		},
	}
}

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formcalc/internal/prompt"
	"github.com/goliatone/go-formcalc/pkg/report"
)

func newFillCmd(a *app) *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "fill <form>",
		Short: "Fill in a form interactively while totals update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			form, err := a.loadForm(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := a.newEngine(form, a.cfg.Features)
			if err != nil {
				return err
			}

			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			session := prompt.NewSession(prompt.NewSurveyDriver(cmd.ErrOrStderr()), form, e, a.logger)
			if maxRows > 0 {
				session.MaxRows = maxRows
			}
			if err := session.Run(ctx); err != nil {
				if errors.Is(err, prompt.ErrAborted) {
					a.logger.Info("fill aborted")
					return nil
				}
				return err
			}
			return a.render(cmd, report.Snapshot(form, e))
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "cap on rows added per repeating group")
	return cmd
}

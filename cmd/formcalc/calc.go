package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/report"
)

func newCalcCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "calc <form>",
		Short: "Compute totals for a form definition",
		Long: `Attaches every scope of the form, applies --set edits, formats currency
amounts and writes each scope's total. Edits use scope/key=value, e.g.
--set claim/amount-r1=12.5.`,
		Args: cobra.ExactArgs(1),
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

			for _, scope := range form.Scopes() {
				e.Attach(scope)
			}
			e.Flush(ctx)

			for _, raw := range sets {
				ref, value, err := parseSet(raw)
				if err != nil {
					return err
				}
				if err := form.SetValue(ref, value); err != nil {
					return err
				}
				e.OnFieldChanged(ref)
			}
			for _, scope := range form.Scopes() {
				for _, info := range e.Fields(scope) {
					e.OnFieldBlur(info.Ref)
				}
			}
			for _, res := range e.Flush(ctx) {
				if res.Err != nil {
					return fmt.Errorf("scope %s: %w", res.Scope, res.Err)
				}
			}
			return a.render(cmd, report.Snapshot(form, e))
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field edit as scope/key=value (repeatable)")
	return cmd
}

func parseSet(raw string) (field.Ref, string, error) {
	target, value, ok := strings.Cut(raw, "=")
	if !ok {
		return field.Ref{}, "", fmt.Errorf("invalid --set %q: want scope/key=value", raw)
	}
	scope, key, ok := strings.Cut(strings.TrimSpace(target), "/")
	if !ok || scope == "" || key == "" {
		return field.Ref{}, "", fmt.Errorf("invalid --set %q: want scope/key=value", raw)
	}
	return field.Ref{Scope: field.ScopeID(scope), Key: key}, value, nil
}

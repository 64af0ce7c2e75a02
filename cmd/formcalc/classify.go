package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formcalc/pkg/report"
)

func newClassifyCmd(a *app) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "classify <glob>...",
		Short: "Report the role of every field in the matching form definitions",
		Long: `Classifies the fields of every form definition matched by the given
patterns (doublestar syntax, e.g. "forms/**/*.yaml"). Totals are not
computed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no form definitions match %v", args)
			}
			views, err := a.classifyAll(cmd.Context(), paths, workers)
			if err != nil {
				return err
			}
			for _, view := range views {
				if err := a.render(cmd, view); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "j", 4, "forms classified concurrently")
	return cmd
}

func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// classifyAll loads and classifies every path concurrently. Results keep the
// order of paths.
func (a *app) classifyAll(ctx context.Context, paths []string, workers int) ([]report.View, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	views := make([]report.View, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	features := a.cfg.Features
	features.Calculations = false

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			form, err := a.loadForm(gctx, path)
			if err != nil {
				return err
			}
			e, err := a.newEngine(form, features)
			if err != nil {
				return err
			}
			for _, scope := range form.Scopes() {
				e.Attach(scope)
			}
			e.Flush(gctx)
			views[i] = report.Snapshot(form, e)
			if views[i].Title == "" {
				views[i].Title = path
			}
			a.logger.Debug("form classified", zap.String("path", path), zap.Int("scopes", len(views[i].Scopes)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

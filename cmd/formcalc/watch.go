package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formcalc/internal/watch"
	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/formdef"
	"github.com/goliatone/go-formcalc/pkg/observer"
	"github.com/goliatone/go-formcalc/pkg/report"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <form>",
		Short: "Recompute and report totals whenever the form definition changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			form, err := a.loadForm(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := a.newEngine(form, a.cfg.Features)
			if err != nil {
				return err
			}

			obs := observer.New(e,
				observer.WithTick(a.cfg.Debounce),
				observer.WithLogger(a.logger),
				observer.WithPassHandler(func(_ context.Context, results []engine.PassResult) {
					wrote := false
					for _, res := range results {
						wrote = wrote || res.Wrote
					}
					if !wrote {
						return
					}
					if err := a.render(cmd, report.Snapshot(form, e)); err != nil {
						a.logger.Error("render report", zap.Error(err))
					}
				}),
			)
			defer obs.Close()

			w, err := watch.New(args[0], form, obs,
				watch.WithDebounce(a.cfg.Debounce),
				watch.WithLogger(a.logger),
				watch.WithLoader(a.loadDocument),
			)
			if err != nil {
				return err
			}

			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return obs.Run(gctx) })
			g.Go(func() error { return w.Run(gctx) })

			if err := a.primeWatch(gctx, cmd, obs, form); err != nil {
				stop()
				_ = g.Wait()
				return err
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// primeWatch attaches every scope and renders the first report once the
// initial pass has run, even when nothing was written.
func (a *app) primeWatch(ctx context.Context, cmd *cobra.Command, obs *observer.Observer, form *formdef.Form) error {
	for _, scope := range form.Scopes() {
		if err := obs.Attach(scope); err != nil {
			return err
		}
	}
	err := obs.Do(ctx, func(e *engine.Engine) {
		e.Flush(ctx)
		if err := a.render(cmd, report.Snapshot(form, e)); err != nil {
			a.logger.Error("render report", zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

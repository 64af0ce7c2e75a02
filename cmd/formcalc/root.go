package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/internal/config"
	"github.com/goliatone/go-formcalc/internal/logging"
	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/formdef"
	"github.com/goliatone/go-formcalc/pkg/metrics"
	"github.com/goliatone/go-formcalc/pkg/report"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	operation  string
	format     string

	cfg      *config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
	renderer *report.Renderer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "formcalc",
		Short: "Classify form fields and keep totals consistent",
		Long: `formcalc reads form definitions (YAML documents or OpenAPI request bodies),
classifies every field by name and label, and sums currency amounts into the
form's total field.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (defaults to $"+config.EnvConfigPath+")")
	flags.StringVar(&a.operation, "operation", "", "OpenAPI operation id when the input is an OpenAPI document")
	flags.StringVar(&a.format, "format", report.FormatText, "report format: text or html")

	root.AddCommand(
		newClassifyCmd(a),
		newCalcCmd(a),
		newWatchCmd(a),
		newFillCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	renderer, err := report.New()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger.With(zap.String("command", cmd.Name()))
	a.recorder = metrics.New()
	a.renderer = renderer
	return nil
}

func (a *app) loadDocument(ctx context.Context, path string) (*formdef.Document, error) {
	return formdef.LoadFile(ctx, path, a.operation)
}

func (a *app) loadForm(ctx context.Context, path string) (*formdef.Form, error) {
	doc, err := a.loadDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return formdef.New(doc)
}

func (a *app) newEngine(form *formdef.Form, features engine.Features) (*engine.Engine, error) {
	return engine.New(form,
		engine.WithClassifier(classify.New(classify.WithRules(a.cfg.Keywords))),
		engine.WithPolicy(a.cfg.Policy()),
		engine.WithFeatures(features),
		engine.WithLogger(a.logger),
		engine.WithRecorder(a.recorder),
	)
}

// serveMetrics exposes the recorder on cfg.MetricsAddr until the returned
// stop function is called. It is a no-op when no address is configured.
func (a *app) serveMetrics() (stop func()) {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.recorder.Handler())
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

func (a *app) render(cmd *cobra.Command, view report.View) error {
	out, err := a.renderer.RenderString(a.format, view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

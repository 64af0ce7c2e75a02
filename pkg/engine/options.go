package engine

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/pkg/aggregate"
	"github.com/goliatone/go-formcalc/pkg/classify"
)

// Features toggles the derived behaviours. The zero value disables
// everything; use DefaultFeatures for the stock configuration.
type Features struct {
	Calculations       bool `koanf:"calculations" yaml:"calculations"`
	DateValidation     bool `koanf:"date_validation" yaml:"date_validation"`
	CurrencyFormatting bool `koanf:"currency_formatting" yaml:"currency_formatting"`
	ClampNegative      bool `koanf:"clamp_negative" yaml:"clamp_negative"`
}

// DefaultFeatures enables every behaviour.
func DefaultFeatures() Features {
	return Features{
		Calculations:       true,
		DateValidation:     true,
		CurrencyFormatting: true,
		ClampNegative:      true,
	}
}

// Option customises the Engine.
type Option func(*Engine)

// WithClassifier injects a preconfigured classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithPolicy overrides the aggregation eligibility policy.
func WithPolicy(policy aggregate.Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithFeatures replaces the feature toggles.
func WithFeatures(features Features) Option {
	return func(e *Engine) {
		e.features = features
	}
}

// WithLogger sets the structured logger. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder registers an activity recorder, typically the Prometheus
// implementation from pkg/metrics.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

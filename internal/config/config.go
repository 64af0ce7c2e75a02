// Package config loads the runtime configuration of the formcalc tools.
//
// Values are layered, lowest precedence first:
//  1. built-in defaults (New)
//  2. a YAML file, when a path is given or FORMCALC_CONFIG is set
//  3. environment variables prefixed with FORMCALC_
//
// Nested keys use a double underscore in environment variables, so
// FORMCALC_FEATURES__CLAMP_NEGATIVE=false sets features.clamp_negative.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formcalc/pkg/aggregate"
	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/engine"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the encoder: console or json.
	LogFormat string `koanf:"log_format"`

	// Debounce is the coalescing window of the change observer.
	Debounce time.Duration `koanf:"debounce"`

	// MinContributors arms a scope once it has this many currency fields.
	MinContributors int `koanf:"min_contributors"`

	// Keywords is the classification vocabulary.
	Keywords classify.Rules `koanf:"keywords"`

	// Features toggles engine behaviours.
	Features engine.Features `koanf:"features"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		Debounce:        50 * time.Millisecond,
		MinContributors: aggregate.DefaultMinContributors,
		Keywords:        classify.DefaultRules(),
		Features:        engine.DefaultFeatures(),
	}
}

// Policy returns the aggregation policy described by the config.
func (c *Config) Policy() aggregate.Policy {
	return aggregate.Policy{MinContributors: c.MinContributors}
}

// Validate reports invalid settings wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: debounce must not be negative", ErrInvalidConfig)
	}
	if c.MinContributors < 1 {
		return fmt.Errorf("%w: min_contributors must be at least 1", ErrInvalidConfig)
	}
	if err := c.Keywords.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// defaults flattens New into the dotted keys consumed by koanf.
func defaults() map[string]any {
	c := New()
	return map[string]any{
		"log_level":                    c.LogLevel,
		"log_format":                   c.LogFormat,
		"debounce":                     c.Debounce,
		"min_contributors":             c.MinContributors,
		"metrics_addr":                 c.MetricsAddr,
		"keywords.total":               c.Keywords.Total,
		"keywords.currency":            c.Keywords.Currency,
		"keywords.past_date":           c.Keywords.PastDate,
		"features.calculations":        c.Features.Calculations,
		"features.date_validation":     c.Features.DateValidation,
		"features.currency_formatting": c.Features.CurrencyFormatting,
		"features.clamp_negative":      c.Features.ClampNegative,
	}
}

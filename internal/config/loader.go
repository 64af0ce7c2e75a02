package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FORMCALC_"
	// EnvConfigPath names the config file when no path is passed to Load.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, the optional YAML file at path
// (or FORMCALC_CONFIG when path is empty) and FORMCALC_ environment
// variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", ErrLoadConfig, err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLoadConfig, err)
	}
	cfg.Keywords.Total = splitLists(cfg.Keywords.Total)
	cfg.Keywords.Currency = splitLists(cfg.Keywords.Currency)
	cfg.Keywords.PastDate = splitLists(cfg.Keywords.PastDate)
	cfg.Keywords = cfg.Keywords.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps FORMCALC_FEATURES__CLAMP_NEGATIVE to features.clamp_negative.
// The config file path itself is not a config key.
func envKey(s string) string {
	if s == EnvConfigPath {
		return ""
	}
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// splitLists expands comma separated entries, the form lists take when set
// from a single environment variable.
func splitLists(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

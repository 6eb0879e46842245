package wfconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// WorkspaceConfig is the full set of settings a weaveforge invocation reads
// from <projectRoot>/.weaveforge/workspace.yaml. Every field has a sane
// zero-config default (see DefaultWorkspaceConfig); the file itself is optional.
type WorkspaceConfig struct {
	// GraphPath, if set, overrides graph discovery's search order with an
	// explicit path (still resolved relative to the project root).
	GraphPath string `mapstructure:"graph_path" yaml:"graph_path,omitempty"`

	// Concurrency bounds how many actions the scheduler dispatches at
	// once within a wave. Zero means runtime.NumCPU().
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency,omitempty"`

	// FailurePolicy is "stop_on_first_error" or "keep_going".
	FailurePolicy string `mapstructure:"failure_policy" yaml:"failure_policy,omitempty"`

	// MaxRetryAttempts bounds backoff retries for a transient action failure
	// (retries after the first attempt).
	MaxRetryAttempts int `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts,omitempty"`

	// CacheMaxEntries and CacheMaxBytes bound the action cache's eviction
	// budget; zero means the cache package's own defaults.
	CacheMaxEntries int   `mapstructure:"cache_max_entries" yaml:"cache_max_entries,omitempty"`
	CacheMaxBytes   int64 `mapstructure:"cache_max_bytes" yaml:"cache_max_bytes,omitempty"`

	// NatsURL is the peer gossip/steal-exchange connection string. It is
	// loaded here, but the build command does not read it: every run is
	// single-peer whatever it holds.
	NatsURL string `mapstructure:"nats_url" yaml:"nats_url,omitempty"`

	// LogLevel is a logr verbosity threshold name ("info", "debug").
	LogLevel string `mapstructure:"log_level" yaml:"log_level,omitempty"`
}

// DefaultWorkspaceConfig returns the configuration a fresh project gets
// with no workspace.yaml at all.
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		FailurePolicy:    "stop_on_first_error",
		MaxRetryAttempts: 3,
		LogLevel:         "info",
	}
}

// LoadWorkspaceConfig reads <projectRoot>/.weaveforge/workspace.yaml, if
// present, layering it over DefaultWorkspaceConfig. A missing file is not
// an error; an unknown key or a value of the wrong type is.
func LoadWorkspaceConfig(projectRoot string) (WorkspaceConfig, error) {
	cfg := DefaultWorkspaceConfig()

	path := layout(projectRoot).ConfigPath
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return WorkspaceConfig{}, fmt.Errorf("stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return WorkspaceConfig{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := rejectUnknownKeys(v.AllSettings(), allowedConfigKeys); err != nil {
		return WorkspaceConfig{}, fmt.Errorf("%s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return WorkspaceConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if cfg.FailurePolicy != "stop_on_first_error" && cfg.FailurePolicy != "keep_going" {
		return WorkspaceConfig{}, fmt.Errorf("%s: failure_policy must be stop_on_first_error or keep_going, got %q", path, cfg.FailurePolicy)
	}
	if cfg.Concurrency < 0 {
		return WorkspaceConfig{}, fmt.Errorf("%s: concurrency must be >= 0", path)
	}
	if cfg.MaxRetryAttempts < 0 {
		return WorkspaceConfig{}, fmt.Errorf("%s: max_retry_attempts must be >= 0", path)
	}

	return cfg, nil
}

// WriteDefaultWorkspaceConfig writes cfg to <projectRoot>/.weaveforge/workspace.yaml
// using the same yaml tags LoadWorkspaceConfig's viper binding reads back,
// so round-tripping through this function and LoadWorkspaceConfig is
// lossless for every non-zero field.
func WriteDefaultWorkspaceConfig(projectRoot string, cfg WorkspaceConfig) error {
	path := layout(projectRoot).ConfigPath
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal workspace config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var allowedConfigKeys = map[string]struct{}{
	"graph_path":         {},
	"concurrency":        {},
	"failure_policy":     {},
	"max_retry_attempts": {},
	"cache_max_entries":  {},
	"cache_max_bytes":    {},
	"nats_url":           {},
	"log_level":          {},
}

func rejectUnknownKeys(settings map[string]any, allowed map[string]struct{}) error {
	for k := range settings {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("unknown config key %q", k)
		}
	}
	return nil
}

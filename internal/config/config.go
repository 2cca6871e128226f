package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/replan/internal/replan"
)

// Config represents the complete replan configuration
type Config struct {
	Replan  ReplanConfig  `mapstructure:"replan"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Events  EventsConfig  `mapstructure:"events"`
}

// ReplanConfig controls the decision engine
type ReplanConfig struct {
	// Thresholds decide when each trigger fires
	Thresholds replan.TriggerThresholds `mapstructure:"thresholds"`
	Split      SplitConfig              `mapstructure:"split"`
	History    HistoryConfig            `mapstructure:"history"`
}

// SplitConfig controls the default task splitter
type SplitConfig struct {
	// MaxSubtasks caps how many subtasks a time-based split produces (default: 5)
	MaxSubtasks int `mapstructure:"max_subtasks"`
	// MaxDepth is how many "Part N" markers a task name may carry before it
	// can no longer be split (default: 3)
	MaxDepth int `mapstructure:"max_depth"`
}

// HistoryConfig controls decision retention
type HistoryConfig struct {
	// Limit keeps only the most recent N decisions per task. 0 keeps all.
	Limit int `mapstructure:"limit"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where replan.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// EventsConfig controls event forwarding
type EventsConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig controls the NATS event sink
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// SubjectPrefix is prepended to every event type (default: "replan")
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Replan: ReplanConfig{
			Thresholds: replan.DefaultThresholds(),
			Split: SplitConfig{
				MaxSubtasks: 5,
				MaxDepth:    3,
			},
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Metrics: MetricsConfig{
			Namespace: "replan",
		},
		Events: EventsConfig{
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "replan",
			},
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Threshold defaults
	th := defaults.Replan.Thresholds
	v.SetDefault("replan.thresholds.time_exceeded_ratio", th.TimeExceededRatio)
	v.SetDefault("replan.thresholds.iterations_ratio", th.IterationsRatio)
	v.SetDefault("replan.thresholds.scope_creep_files", th.ScopeCreepFiles)
	v.SetDefault("replan.thresholds.consecutive_failures", th.ConsecutiveFailures)
	v.SetDefault("replan.thresholds.complexity_keywords", th.ComplexityKeywords)

	// Split and history defaults
	v.SetDefault("replan.split.max_subtasks", defaults.Replan.Split.MaxSubtasks)
	v.SetDefault("replan.split.max_depth", defaults.Replan.Split.MaxDepth)
	v.SetDefault("replan.history.limit", defaults.Replan.History.Limit)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)

	// Event defaults
	v.SetDefault("events.nats.enabled", defaults.Events.NATS.Enabled)
	v.SetDefault("events.nats.url", defaults.Events.NATS.URL)
	v.SetDefault("events.nats.subject_prefix", defaults.Events.NATS.SubjectPrefix)
}

// Load reads the configuration from the global viper instance and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "replan")
	}
	// Fall back to ~/.config/replan
	home, err := os.UserHomeDir()
	if err != nil {
		return ".replan"
	}
	return filepath.Join(home, ".config", "replan")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

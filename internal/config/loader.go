package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SURVEYOR_MAX_TURNS
const EnvPrefix = "SURVEYOR"

// Loader handles configuration loading
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a loader. An empty configPath means defaults plus
// environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Viper exposes the underlying instance so callers can bind flags before Load
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load merges defaults, the optional JSON config file, SURVEYOR_* environment
// overrides and bound flags, in increasing precedence
func (l *Loader) Load() (*Config, error) {
	v := l.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider credentials keep their conventional unprefixed names
	if err := v.BindEnv("credentials.anthropic", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind credential: %w", err)
	}
	if err := v.BindEnv("credentials.openai", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind credential: %w", err)
	}

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
		v.SetConfigFile(l.configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderAnthropic
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = v.GetString("credentials." + cfg.Provider)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the config file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("max_turns", d.MaxTurns)
	v.SetDefault("token_budget", d.TokenBudget)
	v.SetDefault("call_timeout_seconds", d.CallTimeoutSeconds)
	v.SetDefault("tool_timeout_seconds", d.ToolTimeoutSeconds)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("max_parallel_tools", d.MaxParallelTools)
	v.SetDefault("max_output_bytes", d.MaxOutputBytes)
	v.SetDefault("max_read_bytes", d.MaxReadBytes)
	v.SetDefault("ripgrep_path", d.RipgrepPath)
	v.SetDefault("listing_max_entries", d.ListingMaxEntries)
	v.SetDefault("listing_max_depth", d.ListingMaxDepth)
	v.SetDefault("notes_file", d.NotesFile)
	v.SetDefault("instructions.system", d.Instructions.System)
	v.SetDefault("instructions.task", d.Instructions.Task)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("audit_file", d.AuditFile)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// IsMissingCredential reports whether err is a missing credential failure
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

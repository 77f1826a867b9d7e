package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider accepts the supported remote services
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case ProviderAnthropic, ProviderOpenAI:
		return nil
	default:
		return fmt.Errorf("invalid provider: %s (must be one of: %s, %s)", provider, ProviderAnthropic, ProviderOpenAI)
	}
}

// ValidateAPIKey checks presence only. Key formats vary across proxies and
// gateways, so a well-formed prefix is not required.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %s API key cannot be empty", ErrMissingCredential, provider)
	}
	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateNotesFile requires a plain relative path inside the target
func (v *Validator) ValidateNotesFile(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("notes_file cannot be empty")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("notes_file must be relative to the target directory, got %s", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return fmt.Errorf("notes_file cannot leave the target directory, got %s", name)
		}
	}
	return nil
}

// ValidateConfig checks every setting except the credential and returns all
// problems found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateProvider(cfg.Provider); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateModel(cfg.Model); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateTemperature(cfg.Temperature); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateMaxTokens(cfg.MaxTokens); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("max_turns must be positive, got %d", cfg.MaxTurns))
	}
	if cfg.TokenBudget < 0 {
		errs = append(errs, fmt.Errorf("token_budget must be >= 0"))
	}
	if cfg.CallTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("call_timeout_seconds must be positive"))
	}
	if cfg.ToolTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout_seconds must be positive"))
	}
	if cfg.MaxParallelTools < 0 {
		errs = append(errs, fmt.Errorf("max_parallel_tools must be >= 0"))
	}
	if cfg.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("max_output_bytes must be >= 0"))
	}
	if cfg.MaxReadBytes < 0 {
		errs = append(errs, fmt.Errorf("max_read_bytes must be >= 0"))
	}
	if cfg.ListingMaxEntries < 0 || cfg.ListingMaxDepth < 0 {
		errs = append(errs, fmt.Errorf("listing limits must be >= 0"))
	}
	if err := v.ValidateNotesFile(cfg.NotesFile); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// Validate returns ErrMissingCredential when no key is configured, otherwise
// the joined settings errors, if any
func Validate(cfg *Config) error {
	v := NewValidator()
	if err := v.ValidateAPIKey(cfg.APIKey, cfg.Provider); err != nil {
		return fmt.Errorf("%w (set %s)", err, cfg.CredentialEnv())
	}
	return errors.Join(v.ValidateConfig(cfg)...)
}

// Validate checks the config. See the package-level Validate.
func (c *Config) Validate() error {
	return Validate(c)
}

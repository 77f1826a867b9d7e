package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/surveyor/internal/logger"
)

// ErrMissingCredential is returned when no API key is configured for the provider
var ErrMissingCredential = errors.New("missing API credential")

// Provider names
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config represents the surveyor configuration
type Config struct {
	// Remote service
	Provider    string  `json:"provider" mapstructure:"provider"`
	Model       string  `json:"model" mapstructure:"model"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	APIKey      string  `json:"-" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Loop limits
	MaxTurns           int `json:"max_turns" mapstructure:"max_turns"`
	TokenBudget        int `json:"token_budget" mapstructure:"token_budget"` // 0 disables threshold compaction
	CallTimeoutSeconds int `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
	ToolTimeoutSeconds int `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
	MaxRetries         int `json:"max_retries" mapstructure:"max_retries"` // negative disables retries

	// Tools
	MaxParallelTools int    `json:"max_parallel_tools" mapstructure:"max_parallel_tools"`
	MaxOutputBytes   int    `json:"max_output_bytes" mapstructure:"max_output_bytes"`
	MaxReadBytes     int    `json:"max_read_bytes" mapstructure:"max_read_bytes"`
	RipgrepPath      string `json:"ripgrep_path" mapstructure:"ripgrep_path"`

	// Target directory
	ListingMaxEntries int    `json:"listing_max_entries" mapstructure:"listing_max_entries"`
	ListingMaxDepth   int    `json:"listing_max_depth" mapstructure:"listing_max_depth"`
	NotesFile         string `json:"notes_file" mapstructure:"notes_file"`

	Instructions InstructionsConfig `json:"instructions" mapstructure:"instructions"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`

	// MetricsFile receives a Prometheus text-format dump at exit
	MetricsFile string `json:"metrics_file" mapstructure:"metrics_file"`
	// AuditFile receives one JSON line per tool call and run outcome
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// InstructionsConfig carries the opaque instruction payloads sent to the model
type InstructionsConfig struct {
	System string `json:"system" mapstructure:"system"`
	Task   string `json:"task" mapstructure:"task"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

const defaultSystemPrompt = `You are working inside one directory on the user's machine. Use the tools to inspect it. Keep working notes in the notes file named in the first message, and call compact when the conversation grows long. When you are finished, reply with your final answer and no tool calls.`

const defaultTask = `Explore the target directory and describe what it contains: its structure, its main components, and how they fit together.`

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider:           ProviderAnthropic,
		MaxTokens:          8192,
		MaxTurns:           50,
		TokenBudget:        150000,
		CallTimeoutSeconds: 300,
		ToolTimeoutSeconds: 120,
		MaxRetries:         2,
		MaxParallelTools:   4,
		MaxOutputBytes:     100000,
		MaxReadBytes:       200000,
		RipgrepPath:        "rg",
		ListingMaxEntries:  200,
		ListingMaxDepth:    4,
		NotesFile:          ".surveyor-notes.md",
		Instructions: InstructionsConfig{
			System: defaultSystemPrompt,
			Task:   defaultTask,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// CallTimeout is the per-request provider timeout
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// ToolTimeout is the per-call tool timeout
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// CredentialEnv names the environment variable holding the provider key
func (c *Config) CredentialEnv() string {
	if c.Provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// LoggerConfig maps the logging section onto logger.Config. The API key is
// registered as a literal secret so it never reaches a log sink.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   true,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
		MaxSize:   c.Logging.MaxSize,
		MaxAge:    c.Logging.MaxAge,
		Compress:  c.Logging.Compress,
		Secrets:   []string{c.APIKey},
	}
}

// String returns the config as indented JSON without the API key
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling config: %v", err)
	}
	return string(data)
}

package agent

import (
	"time"

	"github.com/harun/surveyor/pkg/conversation"
)

const (
	defaultMaxTurns   = 50
	defaultMaxRetries = 2
	defaultMaxTokens  = 8192
)

// RunContext carries the per-invocation parameters of a run
type RunContext struct {
	TargetPath  string        `json:"target_path"`
	MaxTurns    int           `json:"max_turns,omitempty"`
	TokenBudget int           `json:"token_budget,omitempty"`
	CallTimeout time.Duration `json:"call_timeout,omitempty"`
	ToolTimeout time.Duration `json:"tool_timeout,omitempty"`
	NotesFile   string        `json:"notes_file,omitempty"`
}

// Result contains the output of a run
type Result struct {
	Response    string      `json:"response"`
	Turns       int         `json:"turns"`
	ToolCalls   int         `json:"tool_calls"`
	Compactions int         `json:"compactions"`
	Usage       *TokenUsage `json:"usage,omitempty"`
	RunID       string      `json:"run_id"`

	// Conversation is the transcript as of the end of the run, including
	// runs that ended in a fatal error.
	Conversation conversation.Conversation `json:"-"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u
func (u *TokenUsage) Add(other *TokenUsage) {
	if u == nil || other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// AuthProfile holds the credential and endpoint a provider is built from
type AuthProfile struct {
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"-"`
	BaseURL  string `json:"base_url,omitempty"`
}

// DefaultRunContext returns the default run limits for target
func DefaultRunContext(target string) RunContext {
	return RunContext{
		TargetPath:  target,
		MaxTurns:    defaultMaxTurns,
		CallTimeout: 5 * time.Minute,
		ToolTimeout: 2 * time.Minute,
	}
}

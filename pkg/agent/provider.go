package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/surveyor/pkg/conversation"
	"github.com/harun/surveyor/pkg/toolexecutor"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call sends the full conversation and returns the next assistant turn
	Call(ctx context.Context, request LLMRequest) (*Turn, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []conversation.Message
	Tools        []toolexecutor.ToolDescriptor
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Turn is one assistant reply
type Turn struct {
	Parts      []conversation.Part
	Usage      *TokenUsage
	StopReason string
}

// TextParts returns the text parts in order
func (t *Turn) TextParts() []conversation.Text {
	var out []conversation.Text
	for _, part := range t.Parts {
		if text, ok := part.(conversation.Text); ok {
			out = append(out, text)
		}
	}
	return out
}

// ToolInvocations returns the tool invocation parts in order
func (t *Turn) ToolInvocations() []conversation.ToolInvocation {
	return t.Message().ToolInvocations()
}

// Text concatenates the text parts
func (t *Turn) Text() string {
	var sb strings.Builder
	for _, text := range t.TextParts() {
		sb.WriteString(text.Text)
	}
	return sb.String()
}

// Message converts the turn into an assistant message
func (t *Turn) Message() conversation.Message {
	return conversation.NewMessage(conversation.RoleAssistant, t.Parts...)
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on auth profile
func (f *ProviderFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	if strings.TrimSpace(profile.APIKey) == "" {
		return nil, fmt.Errorf("api key is required for provider %s", profile.Provider)
	}
	switch profile.Provider {
	case "anthropic", "":
		return NewAnthropicProvider(profile), nil
	case "openai":
		return NewOpenAIProvider(profile), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/surveyor/pkg/conversation"
	"github.com/harun/surveyor/pkg/toolexecutor"
)

// AnthropicProvider implements LLMProvider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider. SDK retries are
// disabled; the Runner owns the retry policy.
func NewAnthropicProvider(profile AuthProfile) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(profile.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(profile.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(profile.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude
func (p *AnthropicProvider) Call(ctx context.Context, request LLMRequest) (*Turn, error) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for _, msg := range request.Messages {
		blocks := anthropicBlocks(msg)
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == conversation.RoleAssistant {
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
			continue
		}
		anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}

	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}

	if request.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		reqParams.Tools = anthropicTools(request.Tools)
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	parts := make([]conversation.Part, 0, len(response.Content))
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, conversation.Text{Text: b.Text})
		case anthropic.ToolUseBlock:
			input := map[string]interface{}{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("failed to parse tool input for %s: %w", b.Name, err)
				}
			}
			parts = append(parts, conversation.ToolInvocation{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}

	return &Turn{
		Parts:      parts,
		StopReason: string(response.StopReason),
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// anthropicBlocks maps message parts onto content blocks. Empty text is
// dropped because the API rejects empty text blocks.
func anthropicBlocks(msg conversation.Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, part := range msg.Content {
		switch p := part.(type) {
		case conversation.Text:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case conversation.ToolInvocation:
			input := p.Input
			if input == nil {
				input = map[string]interface{}{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, input, p.Name))
		case conversation.ToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(p.InvocationID, p.PayloadString(), p.IsError))
		}
	}
	return blocks
}

func anthropicTools(descriptors []toolexecutor.ToolDescriptor) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		toolParam := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.InputSchema["properties"],
			},
		}
		if required, ok := d.InputSchema["required"].([]string); ok {
			toolParam.InputSchema.Required = required
		}
		if additional, ok := d.InputSchema["additionalProperties"]; ok {
			toolParam.InputSchema.ExtraFields = map[string]any{"additionalProperties": additional}
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ServiceError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
		}
	}
	return err
}

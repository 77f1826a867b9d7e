package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/surveyor/pkg/conversation"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements LLMProvider for OpenAI
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider with SDK retries disabled
func NewOpenAIProvider(profile AuthProfile) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(profile.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(profile.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(profile.BaseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
	}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Call makes an API call to OpenAI
func (p *OpenAIProvider) Call(ctx context.Context, request LLMRequest) (*Turn, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}

	for _, msg := range request.Messages {
		converted, err := openAIMessages(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}

	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(request.Tools))
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	parts := []conversation.Part{}
	if choice.Message.Content != "" {
		parts = append(parts, conversation.Text{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]interface{}{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		parts = append(parts, conversation.ToolInvocation{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	return &Turn{
		Parts:      parts,
		StopReason: string(choice.FinishReason),
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// openAIMessages flattens one message. Tool results become separate tool
// messages, which the chat API requires right after the assistant turn.
func openAIMessages(msg conversation.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion

	if msg.Role == conversation.RoleAssistant {
		invocations := msg.ToolInvocations()
		if len(invocations) == 0 {
			return append(out, openai.AssistantMessage(msg.Text())), nil
		}

		toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(invocations))
		for _, inv := range invocations {
			args, err := json.Marshal(inv.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool parameters: %w", err)
			}
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
				ID:   inv.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunction{
					Name:      inv.Name,
					Arguments: string(args),
				},
			})
		}
		assistantMsg := openai.ChatCompletionMessage{
			Role:      "assistant",
			Content:   msg.Text(),
			ToolCalls: toolCalls,
		}
		return append(out, assistantMsg.ToParam()), nil
	}

	for _, result := range msg.ToolResults() {
		out = append(out, openai.ToolMessage(result.PayloadString(), result.InvocationID))
	}
	if text := msg.Text(); text != "" {
		out = append(out, openai.UserMessage(text))
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ServiceError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
		}
	}
	return err
}

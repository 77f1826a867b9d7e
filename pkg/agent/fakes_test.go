package agent

import (
	"context"
	"sync"

	"github.com/harun/surveyor/pkg/conversation"
)

// scriptedProvider replays canned replies and records every request
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []func(req LLMRequest) (*Turn, error)
	requests []LLMRequest
}

func (p *scriptedProvider) Provider() string { return "fake" }

func (p *scriptedProvider) Call(ctx context.Context, req LLMRequest) (*Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return textTurn("out of script"), nil
	}
	next := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return next(req)
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) LLMRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func reply(turn *Turn) func(LLMRequest) (*Turn, error) {
	return func(LLMRequest) (*Turn, error) { return turn, nil }
}

func fail(err error) func(LLMRequest) (*Turn, error) {
	return func(LLMRequest) (*Turn, error) { return nil, err }
}

func textTurn(text string) *Turn {
	return &Turn{Parts: []conversation.Part{conversation.Text{Text: text}}, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 2}}
}

func toolTurn(invocations ...conversation.ToolInvocation) *Turn {
	parts := make([]conversation.Part, 0, len(invocations))
	for _, inv := range invocations {
		parts = append(parts, inv)
	}
	return &Turn{Parts: parts, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 2}}
}

func invoke(id, name string, input map[string]interface{}) conversation.ToolInvocation {
	return conversation.ToolInvocation{ID: id, Name: name, Input: input}
}

// fixedCompaction returns a canned summary and counts calls
type fixedCompaction struct {
	mu       sync.Mutex
	output   string
	identity bool
	inputs   []string
}

func (c *fixedCompaction) Compact(ctx context.Context, transcript string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, transcript)
	if c.identity {
		return transcript
	}
	return c.output
}

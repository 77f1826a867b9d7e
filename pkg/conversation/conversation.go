package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one tagged content element of a message
type Part interface {
	isPart()
}

// Text is a plain text segment
type Text struct {
	Text string `json:"text"`
}

// ToolInvocation is a model request to run a named tool
type ToolInvocation struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// ToolResult answers a ToolInvocation with the same id
type ToolResult struct {
	InvocationID string      `json:"tool_use_id"`
	Payload      interface{} `json:"payload"`
	IsError      bool        `json:"is_error,omitempty"`
}

func (Text) isPart()           {}
func (ToolInvocation) isPart() {}
func (ToolResult) isPart()     {}

// PayloadString renders the payload the way it is sent back to the model.
// Strings pass through untouched; everything else is JSON encoded.
func (r ToolResult) PayloadString() string {
	switch v := r.Payload.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf("%v", r.Payload)
	}
	return string(data)
}

// Message is a single turn in the transcript
type Message struct {
	Role    Role
	Content []Part
}

// NewMessage builds a message owning a private copy of parts
func NewMessage(role Role, parts ...Part) Message {
	content := make([]Part, len(parts))
	copy(content, parts)
	return Message{Role: role, Content: content}
}

// UserText is shorthand for a user message with one text part
func UserText(text string) Message {
	return NewMessage(RoleUser, Text{Text: text})
}

// ToolInvocations returns the tool invocation parts in order
func (m Message) ToolInvocations() []ToolInvocation {
	var out []ToolInvocation
	for _, part := range m.Content {
		if inv, ok := part.(ToolInvocation); ok {
			out = append(out, inv)
		}
	}
	return out
}

// ToolResults returns the tool result parts in order
func (m Message) ToolResults() []ToolResult {
	var out []ToolResult
	for _, part := range m.Content {
		if res, ok := part.(ToolResult); ok {
			out = append(out, res)
		}
	}
	return out
}

// CheckInvocationIDs rejects empty or repeated tool invocation ids
func (m Message) CheckInvocationIDs() error {
	seen := make(map[string]bool)
	for _, inv := range m.ToolInvocations() {
		if inv.ID == "" {
			return fmt.Errorf("tool invocation %s has an empty id", inv.Name)
		}
		if seen[inv.ID] {
			return fmt.Errorf("duplicate tool invocation id %s", inv.ID)
		}
		seen[inv.ID] = true
	}
	return nil
}

// Text concatenates all text parts
func (m Message) Text() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if t, ok := part.(Text); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Conversation is an ordered, append-only transcript.
// The zero value is an empty conversation.
type Conversation struct {
	messages []Message
}

// New seeds a conversation with the given messages
func New(seed ...Message) Conversation {
	return Conversation{}.Append(seed...)
}

// Append returns a new conversation with msgs added at the end.
// The receiver is left unchanged.
func (c Conversation) Append(msgs ...Message) Conversation {
	next := make([]Message, 0, len(c.messages)+len(msgs))
	next = append(next, c.messages...)
	for _, msg := range msgs {
		next = append(next, NewMessage(msg.Role, msg.Content...))
	}
	return Conversation{messages: next}
}

// Len returns the number of messages
func (c Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the transcript
func (c Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ReplaceAfterSeed collapses everything after the seed message into one
// compacted text part. The result is a single user message carrying the
// seed's parts followed by the compacted transcript.
func (c Conversation) ReplaceAfterSeed(compacted string) (Conversation, error) {
	if len(c.messages) == 0 {
		return c, fmt.Errorf("cannot compact an empty conversation")
	}
	seed := c.messages[0]
	if seed.Role != RoleUser {
		return c, fmt.Errorf("seed message must be a user message, got %s", seed.Role)
	}

	parts := make([]Part, 0, len(seed.Content)+1)
	parts = append(parts, seed.Content...)
	parts = append(parts, Text{Text: "# Compacted progress so far\n\n" + compacted})

	return New(NewMessage(RoleUser, parts...)), nil
}

// SuffixAfterSeed returns the messages following the seed message
func (c Conversation) SuffixAfterSeed() Conversation {
	if len(c.messages) <= 1 {
		return Conversation{}
	}
	return New(c.messages[1:]...)
}

// Render produces a plain-text transcript suitable for summarization
func (c Conversation) Render() string {
	var sb strings.Builder
	for i, msg := range c.messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s]\n", msg.Role)
		for _, part := range msg.Content {
			switch p := part.(type) {
			case Text:
				sb.WriteString(p.Text)
				sb.WriteString("\n")
			case ToolInvocation:
				input, _ := json.Marshal(p.Input)
				fmt.Fprintf(&sb, "-> %s(%s)\n", p.Name, input)
			case ToolResult:
				status := "ok"
				if p.IsError {
					status = "error"
				}
				fmt.Fprintf(&sb, "<- %s [%s]: %s\n", p.InvocationID, status, p.PayloadString())
			}
		}
	}
	return sb.String()
}

// EstimateTokens gives a rough token count (about 4 characters per token)
func (c Conversation) EstimateTokens() int {
	return (len(c.Render()) + 3) / 4
}

// Validate checks that every tool invocation has exactly one matching result
// in the next message and that invocation ids are unique within a turn.
func (c Conversation) Validate() error {
	for i, msg := range c.messages {
		invocations := msg.ToolInvocations()
		if len(invocations) == 0 {
			continue
		}
		if msg.Role != RoleAssistant {
			return fmt.Errorf("message %d: tool invocations must come from the assistant", i)
		}

		if err := msg.CheckInvocationIDs(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		pending := make(map[string]bool, len(invocations))
		for _, inv := range invocations {
			pending[inv.ID] = true
		}

		if i+1 >= len(c.messages) {
			return fmt.Errorf("message %d: %d tool invocations have no results", i, len(invocations))
		}
		next := c.messages[i+1]
		if next.Role != RoleUser {
			return fmt.Errorf("message %d: tool results must follow in a user message", i+1)
		}
		for _, res := range next.ToolResults() {
			if !pending[res.InvocationID] {
				return fmt.Errorf("message %d: unexpected or duplicate tool result %s", i+1, res.InvocationID)
			}
			delete(pending, res.InvocationID)
		}
		if len(pending) > 0 {
			return fmt.Errorf("message %d: %d tool invocations have no results", i, len(pending))
		}
	}
	return nil
}

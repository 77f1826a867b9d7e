// Package conversation holds the append-only transcript exchanged with the model.
//
// Invariants:
// - Messages are immutable once appended; Append returns a new Conversation.
// - Every ToolInvocation is answered by exactly one ToolResult with the same id
//   in the following user message.
// - The only shrinking operation is ReplaceAfterSeed, used by compaction.
//
// Usage:
//
//	conv := conversation.New(conversation.UserText("list the repo"))
//	conv = conv.Append(conversation.NewMessage(conversation.RoleAssistant, conversation.Text{Text: "ok"}))
package conversation

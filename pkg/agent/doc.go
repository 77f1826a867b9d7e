// Package agent drives a remote text-generation service over a target
// directory: it seeds a conversation, dispatches requested tools, feeds
// results back and stops at the first reply without tool invocations.
//
// Invariants:
// - Every tool invocation is answered by exactly one result, in order, in
//   the next user message before the provider is called again.
// - An unknown tool name aborts the run without touching the conversation.
// - The conversation only shrinks through a logged compaction that keeps
//   the seed message.
// - Runs are bounded by a turn budget; provider calls by a timeout and a
//   bounded retry with exponential backoff.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Provider:     provider,
//		ToolExecutor: executor,
//		Model:        "claude-sonnet-4-5",
//	})
//	result, err := runner.Run(ctx, agent.DefaultRunContext("/srv/project"))
package agent

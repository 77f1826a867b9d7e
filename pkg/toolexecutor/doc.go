// Package toolexecutor is the closed dispatch table for host-side tools.
//
// Invariants:
// - The table is fixed at construction; names are unique and schemas compile.
// - Parameters are schema-validated before a handler runs.
// - An unknown tool name is the only error Execute returns; handler failures
//   come back as structured ToolResult values.
// - Within a batch, calls on overlapping paths keep their submission order
//   whenever one of them mutates.
//
// Usage:
//
//	exec, _ := toolexecutor.New(toolexecutor.Options{}, toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	result, err := exec.Execute(ctx, "echo", map[string]interface{}{"text": "hi"}, nil)
package toolexecutor

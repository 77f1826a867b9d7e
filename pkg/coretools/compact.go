package coretools

import (
	"context"

	"github.com/harun/surveyor/pkg/toolexecutor"
)

// CompactParams are the inputs of compact
type CompactParams struct {
	Text string `json:"text"`
}

func compactTool(opts Options) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        string(Compact),
		Description: "Summarize a long working transcript into a structured progress report that keeps every file path, finding and next step.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "text", Type: "string", Description: "Transcript to compact", Required: true},
		},
		Handler: typed(func(ctx context.Context, p CompactParams) (interface{}, error) {
			if opts.Compaction == nil {
				return p.Text, nil
			}
			return opts.Compaction.Compact(ctx, p.Text), nil
		}),
	}
}

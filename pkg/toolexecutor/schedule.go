package toolexecutor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Call is one tool invocation inside a batch
type Call struct {
	ID     string
	Name   string
	Params map[string]interface{}
}

// lane describes the filesystem resource a call touches
type lane struct {
	path    string
	mutates bool
}

// ExecuteBatch runs all calls of one turn. Names are resolved up front, so an
// unknown tool aborts the batch before any handler runs. Calls run
// concurrently, except that a call waits for every earlier call on an
// overlapping path when either of the two mutates. Results are index-aligned
// with calls.
func (te *ToolExecutor) ExecuteBatch(ctx context.Context, calls []Call, execCtx *ExecutionContext) ([]ToolResult, error) {
	lanes := make([]lane, len(calls))
	for i, call := range calls {
		def := te.tools[call.Name]
		if def == nil {
			log.Error().Str("tool", call.Name).Str("call_id", call.ID).Msg("Tool not found in batch")
			return nil, &UnknownToolError{Name: call.Name}
		}
		lanes[i] = lane{path: resourcePath(def, call.Params, execCtx), mutates: def.Mutates}
	}

	results := make([]ToolResult, len(calls))
	done := make([]chan struct{}, len(calls))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(te.opts.MaxParallel)

	for i := range calls {
		deps := dependencies(lanes, i)
		g.Go(func() error {
			defer close(done[i])

			for _, j := range deps {
				select {
				case <-done[j]:
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				results[i] = ToolResult{Success: false, Error: "tool execution cancelled"}
				return nil
			}

			result, err := te.Execute(ctx, calls[i].Name, calls[i].Params, execCtx)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dependencies lists earlier calls that must finish before call i starts
func dependencies(lanes []lane, i int) []int {
	if lanes[i].path == "" {
		return nil
	}
	var deps []int
	for j := 0; j < i; j++ {
		if lanes[j].path == "" {
			continue
		}
		if !lanes[i].mutates && !lanes[j].mutates {
			continue
		}
		if pathsOverlap(lanes[i].path, lanes[j].path) {
			deps = append(deps, j)
		}
	}
	return deps
}

// resourcePath resolves the resource parameter of a call to a clean absolute path
func resourcePath(def *ToolDefinition, params map[string]interface{}, execCtx *ExecutionContext) string {
	if def.ResourceParam == "" {
		return ""
	}
	workDir := ""
	if execCtx != nil {
		workDir = execCtx.WorkingDir
	}

	raw, _ := params[def.ResourceParam].(string)
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		raw = workDir
	case !filepath.IsAbs(raw) && workDir != "":
		raw = filepath.Join(workDir, raw)
	}
	if raw == "" {
		return string(filepath.Separator)
	}
	return filepath.Clean(raw)
}

// pathsOverlap reports whether a and b are the same path or one contains the other
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	if a == sep || b == sep {
		return true
	}
	return strings.HasPrefix(b, a+sep) || strings.HasPrefix(a, b+sep)
}

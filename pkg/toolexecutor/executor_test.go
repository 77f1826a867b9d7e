package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo input",
		Parameters: []ToolParameter{
			{Name: "input", Type: "string", Description: "Input parameter", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["input"], nil
		},
	}
}

func newTestExecutor(t *testing.T, defs ...ToolDefinition) *ToolExecutor {
	t.Helper()
	te, err := New(Options{}, defs...)
	require.NoError(t, err)
	return te
}

func TestNew_InvalidDefinition(t *testing.T) {
	noop := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name string
		defs []ToolDefinition
	}{
		{name: "empty name", defs: []ToolDefinition{{Description: "Test", Handler: noop}}},
		{name: "empty description", defs: []ToolDefinition{{Name: "test", Handler: noop}}},
		{name: "nil handler", defs: []ToolDefinition{{Name: "test", Description: "Test"}}},
		{
			name: "invalid parameter type",
			defs: []ToolDefinition{{
				Name: "test", Description: "Test", Handler: noop,
				Parameters: []ToolParameter{{Name: "p", Type: "date", Description: "d"}},
			}},
		},
		{
			name: "undeclared resource parameter",
			defs: []ToolDefinition{{
				Name: "test", Description: "Test", Handler: noop, ResourceParam: "path",
			}},
		},
		{name: "duplicate names", defs: []ToolDefinition{echoTool(), echoTool()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}, tt.defs...)
			assert.Error(t, err)
		})
	}
}

func TestToolExecutor_Descriptors(t *testing.T) {
	second := echoTool()
	second.Name = "alpha"
	te := newTestExecutor(t, echoTool(), second)

	descriptors := te.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "alpha", descriptors[0].Name)
	assert.Equal(t, "echo", descriptors[1].Name)
	assert.Equal(t, []string{"alpha", "echo"}, te.ListTools())

	schema := descriptors[1].InputSchema
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"input"}, schema["required"])
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te := newTestExecutor(t, echoTool())

	result, err := te.Execute(context.Background(), "echo", map[string]interface{}{"input": "hello"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
	assert.Equal(t, "hello", result.Payload())
	assert.Contains(t, result.Metadata, "duration")
}

func TestToolExecutor_Execute_UnknownTool(t *testing.T) {
	te := newTestExecutor(t, echoTool())

	_, err := te.Execute(context.Background(), "missing", nil, nil)
	require.Error(t, err)
	assert.True(t, IsUnknownTool(err))

	var unknown *UnknownToolError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)
}

func TestToolExecutor_Execute_ValidationFailure(t *testing.T) {
	te := newTestExecutor(t, echoTool())

	t.Run("missing required", func(t *testing.T) {
		result, err := te.Execute(context.Background(), "echo", map[string]interface{}{}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "parameter validation failed")
	})

	t.Run("unexpected parameter", func(t *testing.T) {
		result, err := te.Execute(context.Background(), "echo", map[string]interface{}{"input": "x", "extra": 1}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("nested object properties", func(t *testing.T) {
		def := ToolDefinition{
			Name:        "nested",
			Description: "Nested",
			Parameters: []ToolParameter{{
				Name: "options", Type: "object", Description: "opts",
				Properties: []ToolParameter{{Name: "context", Type: "integer", Description: "lines"}},
			}},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return "ok", nil },
		}
		nte := newTestExecutor(t, def)

		ok, err := nte.Execute(context.Background(), "nested", map[string]interface{}{"options": map[string]interface{}{"context": 2}}, nil)
		require.NoError(t, err)
		assert.True(t, ok.Success)

		bad, err := nte.Execute(context.Background(), "nested", map[string]interface{}{"options": map[string]interface{}{"context": "two"}}, nil)
		require.NoError(t, err)
		assert.False(t, bad.Success)
	})
}

func TestToolExecutor_Execute_HandlerErrors(t *testing.T) {
	failing := ToolDefinition{
		Name:        "fail",
		Description: "Always fails",
		Parameters:  []ToolParameter{{Name: "kind", Type: "string", Description: "kind", Required: true}},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			switch params["kind"] {
			case "missing":
				return nil, NotFound("/a/b.txt")
			case "panic":
				panic("boom")
			default:
				return nil, fmt.Errorf("disk on fire")
			}
		},
	}
	te := newTestExecutor(t, failing)

	t.Run("structured tool error is a value", func(t *testing.T) {
		result, err := te.Execute(context.Background(), "fail", map[string]interface{}{"kind": "missing"}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)

		data, err := json.Marshal(result.Payload())
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"File not found","path":"/a/b.txt","exists":false}`, string(data))
	})

	t.Run("plain error becomes error payload", func(t *testing.T) {
		result, err := te.Execute(context.Background(), "fail", map[string]interface{}{"kind": "other"}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, map[string]interface{}{"error": "disk on fire"}, result.Payload())
	})

	t.Run("panic is recovered", func(t *testing.T) {
		result, err := te.Execute(context.Background(), "fail", map[string]interface{}{"kind": "panic"}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "panicked")
	})
}

func TestToolExecutor_Execute_Timeout(t *testing.T) {
	slow := ToolDefinition{
		Name:        "slow",
		Description: "Sleeps",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	te := newTestExecutor(t, slow)

	result, err := te.Execute(context.Background(), "slow", nil, &ExecutionContext{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestToolExecutor_Execute_ExecContextPropagation(t *testing.T) {
	var seen *ExecutionContext
	inspect := ToolDefinition{
		Name:        "inspect",
		Description: "Captures exec context",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			seen = ExecContextFromContext(ctx)
			return "ok", nil
		},
	}
	te := newTestExecutor(t, inspect)

	execCtx := &ExecutionContext{RunID: "run-1", WorkingDir: os.TempDir()}
	_, err := te.Execute(context.Background(), "inspect", nil, execCtx)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "run-1", seen.RunID)
}

func TestToolExecutor_TruncateOutput(t *testing.T) {
	te, err := New(Options{MaxOutputBytes: 16})
	require.NoError(t, err)

	output, truncated := te.truncateOutput(strings.Repeat("x", 64))
	assert.True(t, truncated)
	assert.Contains(t, output, "[output truncated]")

	output, truncated = te.truncateOutput("short")
	assert.False(t, truncated)
	assert.Equal(t, "short", output)

	structured := map[string]interface{}{"stdout": strings.Repeat("y", 64)}
	output, truncated = te.truncateOutput(structured)
	assert.True(t, truncated)
	assert.IsType(t, "", output)

	output, truncated = te.truncateOutput(nil)
	assert.False(t, truncated)
	assert.Nil(t, output)
}

func TestToolExecutor_TruncateOutputKeepsRunes(t *testing.T) {
	te, err := New(Options{MaxOutputBytes: 5})
	require.NoError(t, err)

	output, truncated := te.truncateOutput("ééééé")
	assert.True(t, truncated)
	str := output.(string)
	assert.True(t, utf8.ValidString(str))
	assert.Equal(t, "éé\n... [output truncated]", str)
}

func TestCutAtRuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: "hello", max: 3, want: "hel"},
		{in: "hello", max: 10, want: "hello"},
		{in: "ééé", max: 3, want: "é"},
		{in: "ééé", max: 4, want: "éé"},
		{in: "日本", max: 2, want: ""},
		{in: "a日本", max: 5, want: "a日"},
		{in: "a日本", max: 3, want: "a"},
		{in: "abc", max: 0, want: ""},
	}

	for _, tt := range tests {
		got := CutAtRuneBoundary(tt.in, tt.max)
		assert.Equal(t, tt.want, got, "%q cut at %d", tt.in, tt.max)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestClassifyFSError(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	notFound := ClassifyFSError("/definitely/not/here", statErr)
	assert.Equal(t, KindNotFound, notFound.Kind)
	require.NotNil(t, notFound.Exists)
	assert.False(t, *notFound.Exists)

	perm := ClassifyFSError("/x", os.ErrPermission)
	assert.Equal(t, KindPermissionDenied, perm.Kind)
	data, _ := json.Marshal(perm)
	assert.JSONEq(t, `{"error":"Permission denied","path":"/x","exists":true}`, string(data))

	generic := ClassifyFSError("/x", fmt.Errorf("weird"))
	assert.Equal(t, KindGenericIO, generic.Kind)
	assert.Nil(t, generic.Exists)

	passthrough := ClassifyFSError("/y", NotADirectory("/y"))
	assert.Equal(t, KindNotADirectory, passthrough.Kind)

	assert.Nil(t, ClassifyFSError("/z", nil))
}

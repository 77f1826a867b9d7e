package coretools

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/harun/surveyor/pkg/toolexecutor"
	"github.com/harun/surveyor/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ws       *workspace.TestWorkspace
	executor *toolexecutor.ToolExecutor
	execCtx  *toolexecutor.ExecutionContext
}

func newHarness(t *testing.T, files map[string]string, opts Options) *harness {
	t.Helper()

	ws := workspace.CreateTempWorkspace(t, files)
	executor, err := toolexecutor.New(toolexecutor.Options{}, New(opts)...)
	require.NoError(t, err)

	return &harness{
		ws:       ws,
		executor: executor,
		execCtx:  &toolexecutor.ExecutionContext{RunID: "test", WorkingDir: ws.Path},
	}
}

func (h *harness) run(t *testing.T, name ToolName, params map[string]interface{}) toolexecutor.ToolResult {
	t.Helper()
	result, err := h.executor.Execute(context.Background(), string(name), params, h.execCtx)
	require.NoError(t, err)
	return result
}

func payloadJSON(t *testing.T, result toolexecutor.ToolResult) string {
	t.Helper()
	data, err := json.Marshal(result.Payload())
	require.NoError(t, err)
	return string(data)
}

type upperCompactor struct{}

func (upperCompactor) Compact(ctx context.Context, transcript string) string {
	return strings.ToUpper(transcript)
}

func TestNew_RegistersClosedSet(t *testing.T) {
	defs := New(Options{})
	require.Len(t, defs, len(Names))

	executor, err := toolexecutor.New(toolexecutor.Options{}, defs...)
	require.NoError(t, err)

	want := make([]string, 0, len(Names))
	for _, name := range Names {
		want = append(want, string(name))
	}
	assert.ElementsMatch(t, want, executor.ListTools())
}

func TestBind(t *testing.T) {
	p, err := bind[SearchFilesParams](map[string]interface{}{
		"pattern": "func",
		"options": map[string]interface{}{"case_insensitive": true, "context": float64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, "func", p.Pattern)
	assert.True(t, p.Options.CaseInsensitive)
	assert.Equal(t, 2, p.Options.Context)

	_, err = bind[ReadFileParams](map[string]interface{}{"path": 42})
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	h := newHarness(t, map[string]string{"src/main.go": "package main\n"}, Options{})

	t.Run("relative path", func(t *testing.T) {
		result := h.run(t, ReadFile, map[string]interface{}{"path": "src/main.go"})
		assert.True(t, result.Success)
		assert.Equal(t, "package main\n", result.Output)
	})

	t.Run("absolute path", func(t *testing.T) {
		result := h.run(t, ReadFile, map[string]interface{}{"path": h.ws.Abs("src/main.go")})
		assert.True(t, result.Success)
		assert.Equal(t, "package main\n", result.Output)
	})

	t.Run("missing file", func(t *testing.T) {
		missing := h.ws.Abs("nope.txt")
		result := h.run(t, ReadFile, map[string]interface{}{"path": missing})
		assert.False(t, result.Success)
		assert.JSONEq(t, `{"error":"File not found","path":"`+missing+`","exists":false}`, payloadJSON(t, result))
	})

	t.Run("missing relative path is reported as given", func(t *testing.T) {
		result := h.run(t, ReadFile, map[string]interface{}{"path": "src/nope.go"})
		assert.False(t, result.Success)
		assert.JSONEq(t, `{"error":"File not found","path":"src/nope.go","exists":false}`, payloadJSON(t, result))
	})

	t.Run("outside target", func(t *testing.T) {
		result := h.run(t, ReadFile, map[string]interface{}{"path": "../../etc/passwd"})
		assert.False(t, result.Success)
		assert.Contains(t, payloadJSON(t, result), "outside the target directory")
	})

	t.Run("directory", func(t *testing.T) {
		result := h.run(t, ReadFile, map[string]interface{}{"path": "src"})
		assert.False(t, result.Success)
		assert.Contains(t, payloadJSON(t, result), "Is a directory")
	})
}

func TestReadFile_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	h := newHarness(t, map[string]string{"secret.txt": "hidden"}, Options{})
	secret := h.ws.Abs("secret.txt")
	require.NoError(t, os.Chmod(secret, 0000))
	t.Cleanup(func() { _ = os.Chmod(secret, 0644) })

	result := h.run(t, ReadFile, map[string]interface{}{"path": secret})
	assert.False(t, result.Success)
	assert.JSONEq(t, `{"error":"Permission denied","path":"`+secret+`","exists":true}`, payloadJSON(t, result))
}

func TestReadFile_Truncates(t *testing.T) {
	h := newHarness(t, map[string]string{"big.txt": strings.Repeat("a", 64)}, Options{MaxReadBytes: 10})

	result := h.run(t, ReadFile, map[string]interface{}{"path": "big.txt"})
	require.True(t, result.Success)
	content := result.Output.(string)
	assert.True(t, strings.HasPrefix(content, strings.Repeat("a", 10)+"\n"))
	assert.Contains(t, content, "file truncated at 10 bytes")
}

func TestReadFile_TruncatesOnRuneBoundary(t *testing.T) {
	h := newHarness(t, map[string]string{"accents.txt": "ééééé"}, Options{MaxReadBytes: 5})

	result := h.run(t, ReadFile, map[string]interface{}{"path": "accents.txt"})
	require.True(t, result.Success)
	content := result.Output.(string)
	assert.True(t, utf8.ValidString(content))
	assert.True(t, strings.HasPrefix(content, "éé\n"))
	assert.Contains(t, content, "file truncated at 5 bytes")
}

func TestReadFile_ExactLimitIsNotTruncated(t *testing.T) {
	h := newHarness(t, map[string]string{"ten.txt": strings.Repeat("a", 10)}, Options{MaxReadBytes: 10})

	result := h.run(t, ReadFile, map[string]interface{}{"path": "ten.txt"})
	require.True(t, result.Success)
	assert.Equal(t, strings.Repeat("a", 10), result.Output)
}

func TestWriteFile(t *testing.T) {
	h := newHarness(t, nil, Options{})

	result := h.run(t, WriteFile, map[string]interface{}{"path": "notes/progress.md", "content": "# Notes"})
	require.True(t, result.Success)

	out := result.Output.(map[string]interface{})
	assert.Equal(t, true, out["success"])
	assert.Equal(t, h.ws.Abs("notes/progress.md"), out["path"])
	assert.Equal(t, 7, out["bytes"])

	data, err := os.ReadFile(h.ws.Abs("notes/progress.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes", string(data))

	// overwrite
	h.run(t, WriteFile, map[string]interface{}{"path": "notes/progress.md", "content": "v2"})
	data, err = os.ReadFile(h.ws.Abs("notes/progress.md"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestWriteFile_ParentIsFile(t *testing.T) {
	h := newHarness(t, map[string]string{"blocker": "x"}, Options{})

	result := h.run(t, WriteFile, map[string]interface{}{"path": "blocker/child.txt", "content": "y"})
	assert.False(t, result.Success)
	assert.Contains(t, payloadJSON(t, result), "blocker")
}

func TestListDirectory(t *testing.T) {
	h := newHarness(t, map[string]string{"b.txt": "b", "a/inner.txt": "x"}, Options{})

	t.Run("entries", func(t *testing.T) {
		result := h.run(t, ListDirectory, map[string]interface{}{"path": "."})
		require.True(t, result.Success)
		assert.JSONEq(t,
			`{"path":"`+h.ws.Path+`","entries":[{"name":"a","isDirectory":true,"isFile":false},{"name":"b.txt","isDirectory":false,"isFile":true}]}`,
			payloadJSON(t, result))
	})

	t.Run("not a directory", func(t *testing.T) {
		result := h.run(t, ListDirectory, map[string]interface{}{"path": "b.txt"})
		assert.False(t, result.Success)
		assert.JSONEq(t, `{"error":"Not a directory","path":"b.txt","exists":true}`, payloadJSON(t, result))
	})

	t.Run("missing", func(t *testing.T) {
		result := h.run(t, ListDirectory, map[string]interface{}{"path": "ghost"})
		assert.False(t, result.Success)
		assert.JSONEq(t, `{"error":"File not found","path":"ghost","exists":false}`, payloadJSON(t, result))
	})
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t, map[string]string{"sub/file.txt": "x"}, Options{})

	t.Run("success in target", func(t *testing.T) {
		result := h.run(t, RunCommand, map[string]interface{}{"command": "pwd; echo oops >&2"})
		require.True(t, result.Success)
		out := result.Output.(CommandResult)
		assert.True(t, out.Success)
		assert.Equal(t, 0, out.ExitCode)
		assert.Equal(t, h.ws.Path, strings.TrimSpace(out.Stdout))
		assert.Equal(t, "oops\n", out.Stderr)
		assert.Empty(t, out.Error)
	})

	t.Run("cwd", func(t *testing.T) {
		result := h.run(t, RunCommand, map[string]interface{}{"command": "ls", "cwd": "sub"})
		out := result.Output.(CommandResult)
		assert.Equal(t, "file.txt\n", out.Stdout)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		result := h.run(t, RunCommand, map[string]interface{}{"command": "exit 3"})
		out := result.Output.(CommandResult)
		assert.False(t, out.Success)
		assert.Equal(t, 3, out.ExitCode)
		assert.NotEmpty(t, out.Error)
	})

	t.Run("missing cwd", func(t *testing.T) {
		result := h.run(t, RunCommand, map[string]interface{}{"command": "true", "cwd": "ghost"})
		assert.False(t, result.Success)
		assert.Contains(t, payloadJSON(t, result), "File not found")
	})
}

func TestRipgrepArgs(t *testing.T) {
	args := ripgrepArgs("TODO", "/w", SearchOptions{CaseInsensitive: true, LineNumbers: true, Context: 2})
	assert.Equal(t, []string{"--no-heading", "--with-filename", "--color=never", "-i", "--line-number", "-C", "2", "-e", "TODO", "/w"}, args)

	args = ripgrepArgs("x", "/w", SearchOptions{FilesWithMatches: true, LineNumbers: true})
	assert.Equal(t, []string{"--no-heading", "--with-filename", "--color=never", "-l", "-e", "x", "/w"}, args)
}

func TestSearchFiles(t *testing.T) {
	if _, err := exec.LookPath("rg"); err != nil {
		t.Skip("ripgrep not installed")
	}

	h := newHarness(t, map[string]string{
		"a.go": "package a\nfunc Hello() {}\n",
		"b.go": "package b\n",
	}, Options{})

	t.Run("matches", func(t *testing.T) {
		result := h.run(t, SearchFiles, map[string]interface{}{
			"pattern": "hello",
			"options": map[string]interface{}{"case_insensitive": true, "files_with_matches": true},
		})
		require.True(t, result.Success)
		out := result.Output.(map[string]interface{})
		assert.Equal(t, true, out["success"])
		assert.Equal(t, []string{filepath.Join(h.ws.Path, "a.go")}, out["results"])
	})

	t.Run("no matches is success", func(t *testing.T) {
		result := h.run(t, SearchFiles, map[string]interface{}{"pattern": "nothing_here_at_all"})
		out := result.Output.(map[string]interface{})
		assert.Equal(t, true, out["success"])
		assert.Empty(t, out["results"])
	})

	t.Run("bad regex", func(t *testing.T) {
		result := h.run(t, SearchFiles, map[string]interface{}{"pattern": "("})
		out := result.Output.(map[string]interface{})
		assert.Equal(t, false, out["success"])
		assert.NotEmpty(t, out["error"])
	})
}

func TestSearchFiles_MissingBinary(t *testing.T) {
	h := newHarness(t, nil, Options{RipgrepPath: "definitely-not-ripgrep"})

	result := h.run(t, SearchFiles, map[string]interface{}{"pattern": "x"})
	out := result.Output.(map[string]interface{})
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "ripgrep is not available")
}

func TestCompactTool(t *testing.T) {
	h := newHarness(t, nil, Options{Compaction: upperCompactor{}})
	result := h.run(t, Compact, map[string]interface{}{"text": "progress"})
	assert.Equal(t, "PROGRESS", result.Output)

	passthrough := newHarness(t, nil, Options{})
	result = passthrough.run(t, Compact, map[string]interface{}{"text": "progress"})
	assert.Equal(t, "progress", result.Output)
}

package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

// TestWorkspace represents a temporary target directory for testing
type TestWorkspace struct {
	Path  string
	Files map[string]string
}

// CreateTempWorkspace creates a temporary directory populated with files.
// It is removed when the test finishes.
func CreateTempWorkspace(t *testing.T, files map[string]string) *TestWorkspace {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "surveyor-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	// macOS temp dirs live behind a symlink; tools compare resolved paths
	if resolved, err := filepath.EvalSymlinks(tmpDir); err == nil {
		tmpDir = resolved
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Errorf("Failed to cleanup workspace: %v", err)
		}
	})

	ws := &TestWorkspace{
		Path:  tmpDir,
		Files: make(map[string]string, len(files)),
	}
	for relPath, content := range files {
		ws.AddFile(t, relPath, content)
	}

	return ws
}

// AddFile writes a file under the workspace, creating parent directories
func (ws *TestWorkspace) AddFile(t *testing.T, relPath, content string) {
	t.Helper()

	fullPath := filepath.Join(ws.Path, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", relPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", fullPath, err)
	}

	ws.Files[relPath] = content
}

// AddDir creates an empty directory under the workspace
func (ws *TestWorkspace) AddDir(t *testing.T, relPath string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Join(ws.Path, relPath), 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", relPath, err)
	}
}

// Abs returns the absolute path of relPath inside the workspace
func (ws *TestWorkspace) Abs(relPath string) string {
	return filepath.Join(ws.Path, relPath)
}

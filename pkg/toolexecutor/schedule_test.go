package toolexecutor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// recorder logs start/end events so tests can assert on ordering
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) indexOf(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func pathTool(name string, mutates bool, rec *recorder, delay time.Duration) ToolDefinition {
	return ToolDefinition{
		Name:          name,
		Description:   name,
		ResourceParam: "path",
		Mutates:       mutates,
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "target", Required: true},
			{Name: "tag", Type: "string", Description: "event tag", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			tag := params["tag"].(string)
			rec.add("start:" + tag)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			rec.add("end:" + tag)
			return tag, nil
		},
	}
}

func TestExecuteBatch_ResultsAlignWithCalls(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	te := newTestExecutor(t, pathTool("read", false, rec, 5*time.Millisecond))

	calls := []Call{
		{ID: "a", Name: "read", Params: map[string]interface{}{"path": "/w/one", "tag": "one"}},
		{ID: "b", Name: "read", Params: map[string]interface{}{"path": "/w/two", "tag": "two"}},
		{ID: "c", Name: "read", Params: map[string]interface{}{"path": "/w/three", "tag": "three"}},
	}

	results, err := te.ExecuteBatch(context.Background(), calls, &ExecutionContext{WorkingDir: "/w"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Output)
	assert.Equal(t, "two", results[1].Output)
	assert.Equal(t, "three", results[2].Output)
}

func TestExecuteBatch_UnknownToolRunsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	te := newTestExecutor(t, pathTool("write", true, rec, 0))

	calls := []Call{
		{ID: "a", Name: "write", Params: map[string]interface{}{"path": "/w/x", "tag": "x"}},
		{ID: "b", Name: "nope", Params: map[string]interface{}{}},
	}

	results, err := te.ExecuteBatch(context.Background(), calls, nil)
	require.Error(t, err)
	assert.True(t, IsUnknownTool(err))
	assert.Nil(t, results)
	assert.Empty(t, rec.events)
}

func TestExecuteBatch_WritesOnOverlappingPathsAreOrdered(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	te := newTestExecutor(t,
		pathTool("write", true, rec, 30*time.Millisecond),
		pathTool("read", false, rec, 0),
	)

	calls := []Call{
		{ID: "1", Name: "write", Params: map[string]interface{}{"path": "notes.md", "tag": "write"}},
		{ID: "2", Name: "read", Params: map[string]interface{}{"path": "/w/notes.md", "tag": "read-after"}},
		{ID: "3", Name: "read", Params: map[string]interface{}{"path": "/w", "tag": "list-parent"}},
	}

	_, err := te.ExecuteBatch(context.Background(), calls, &ExecutionContext{WorkingDir: "/w"})
	require.NoError(t, err)

	writeEnd := rec.indexOf("end:write")
	require.GreaterOrEqual(t, writeEnd, 0)
	assert.Greater(t, rec.indexOf("start:read-after"), writeEnd)
	assert.Greater(t, rec.indexOf("start:list-parent"), writeEnd)
}

func TestExecuteBatch_IndependentReadsRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	te := newTestExecutor(t, pathTool("read", false, rec, 40*time.Millisecond))

	calls := []Call{
		{ID: "1", Name: "read", Params: map[string]interface{}{"path": "/w/a", "tag": "a"}},
		{ID: "2", Name: "read", Params: map[string]interface{}{"path": "/w/a", "tag": "b"}},
	}

	_, err := te.ExecuteBatch(context.Background(), calls, nil)
	require.NoError(t, err)

	// both reads start before either finishes
	assert.Less(t, rec.indexOf("start:b"), rec.indexOf("end:a"))
}

func TestPathsOverlap(t *testing.T) {
	assert.True(t, pathsOverlap("/a/b", "/a/b"))
	assert.True(t, pathsOverlap("/a", "/a/b/c"))
	assert.True(t, pathsOverlap("/a/b/c", "/a"))
	assert.True(t, pathsOverlap("/", "/anything"))
	assert.False(t, pathsOverlap("/a/b", "/a/bc"))
	assert.False(t, pathsOverlap("/x", "/y"))
}

func TestDependencies(t *testing.T) {
	lanes := []lane{
		{path: "/w/a", mutates: true},
		{path: "/w/b", mutates: false},
		{path: "", mutates: false},
		{path: "/w/a", mutates: false},
		{path: "/w/b", mutates: false},
	}

	assert.Nil(t, dependencies(lanes, 0))
	assert.Nil(t, dependencies(lanes, 1))
	assert.Nil(t, dependencies(lanes, 2))
	assert.Equal(t, []int{0}, dependencies(lanes, 3))
	assert.Nil(t, dependencies(lanes, 4))
}

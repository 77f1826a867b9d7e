package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/harun/surveyor/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 100 * 1024
	defaultMaxParallel    = 4
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Required    bool            `json:"required"`
	Default     interface{}     `json:"default,omitempty"`
	Properties  []ToolParameter `json:"properties,omitempty"` // nested fields for object parameters
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`

	// ResourceParam names the parameter holding the filesystem path the tool
	// touches. Empty means the tool has no filesystem resource.
	ResourceParam string `json:"-"`
	// Mutates marks tools that change the filesystem or spawn processes.
	Mutates bool `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolDescriptor is the static schema advertised to the model
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	RunID      string
	WorkingDir string
	Timeout    time.Duration
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Payload is the value handed back to the model for this result
func (r ToolResult) Payload() interface{} {
	if r.Success || r.Output != nil {
		return r.Output
	}
	return map[string]interface{}{"error": r.Error}
}

// Options tunes executor limits
type Options struct {
	DefaultTimeout time.Duration
	MaxOutputBytes int
	MaxParallel    int
}

// ToolExecutor is a closed dispatch table fixed at construction
type ToolExecutor struct {
	tools       map[string]*ToolDefinition
	schemas     map[string]*gojsonschema.Schema
	opts        Options
	descriptors []ToolDescriptor
}

// New builds an executor from a fixed set of definitions. It fails if any
// definition is invalid or a name is registered twice.
func New(opts Options, defs ...ToolDefinition) (*ToolExecutor, error) {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}

	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition, len(defs)),
		schemas: make(map[string]*gojsonschema.Schema, len(defs)),
		opts:    opts,
	}

	for i := range defs {
		def := defs[i]
		if err := validateToolDefinition(def); err != nil {
			return nil, fmt.Errorf("invalid tool definition %q: %w", def.Name, err)
		}
		if _, exists := te.tools[def.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", def.Name)
		}

		raw := generateSchemaMap(def.Parameters)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
		}

		te.tools[def.Name] = &def
		te.schemas[def.Name] = schema
		te.descriptors = append(te.descriptors, ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: raw,
		})
	}

	sort.Slice(te.descriptors, func(i, j int) bool {
		return te.descriptors[i].Name < te.descriptors[j].Name
	})

	log.Info().Strs("tools", te.ListTools()).Msg("Tool executor initialized")

	return te, nil
}

// ListTools returns all registered tool names, sorted
func (te *ToolExecutor) ListTools() []string {
	names := make([]string, 0, len(te.descriptors))
	for _, d := range te.descriptors {
		names = append(names, d.Name)
	}
	return names
}

// Descriptors returns the static tool schemas advertised to the model
func (te *ToolExecutor) Descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, len(te.descriptors))
	copy(out, te.descriptors)
	return out
}

// Execute runs one tool. The only error it returns is *UnknownToolError;
// every handler failure is folded into the ToolResult.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) (ToolResult, error) {
	startTime := time.Now()

	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{}, &UnknownToolError{Name: toolName}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validateParameters(schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}, nil
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	timeout := te.opts.DefaultTimeout
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ContextWithExecContext(ctx, execCtx), timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := tool.Handler(timeoutCtx, params)
		resultChan <- outcome{value: value, err: err}
	}()

	select {
	case out := <-resultChan:
		duration := time.Since(startTime)
		metadata := map[string]interface{}{"duration": duration.Milliseconds()}

		if out.err != nil {
			log.Warn().
				Str("tool", toolName).
				Dur("duration", duration).
				Err(out.err).
				Msg("Tool execution failed")
			observability.RecordToolExecution(toolName, duration, false)

			result := ToolResult{Success: false, Error: out.err.Error(), Metadata: metadata}
			var toolErr *ToolError
			if errors.As(out.err, &toolErr) {
				result.Output = toolErr
			}
			return result, nil
		}

		output, truncated := te.truncateOutput(out.value)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		observability.RecordToolExecution(toolName, duration, true)

		return ToolResult{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Metadata:  metadata,
		}, nil

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")
		observability.RecordToolExecution(toolName, duration, false)

		message := fmt.Sprintf("tool execution timeout after %v", timeout)
		if errors.Is(timeoutCtx.Err(), context.Canceled) {
			message = "tool execution cancelled"
		}
		return ToolResult{
			Success:  false,
			Error:    message,
			Metadata: map[string]interface{}{"duration": duration.Milliseconds()},
		}, nil
	}
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if err := validateParameterList(def.Parameters); err != nil {
		return err
	}
	if def.ResourceParam != "" {
		found := false
		for _, p := range def.Parameters {
			if p.Name == def.ResourceParam && p.Type == "string" {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("resource parameter %s must be a declared string parameter", def.ResourceParam)
		}
	}
	return nil
}

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

func validateParameterList(params []ToolParameter) error {
	seen := make(map[string]bool, len(params))
	for _, param := range params {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if len(param.Properties) > 0 {
			if param.Type != "object" {
				return fmt.Errorf("parameter %s declares properties but is not an object", param.Name)
			}
			if err := validateParameterList(param.Properties); err != nil {
				return fmt.Errorf("%s: %w", param.Name, err)
			}
		}
	}
	return nil
}

// generateSchemaMap builds a JSON Schema object from tool parameters
func generateSchemaMap(params []ToolParameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, param := range params {
		var paramSchema map[string]interface{}
		if len(param.Properties) > 0 {
			paramSchema = generateSchemaMap(param.Properties)
		} else {
			paramSchema = map[string]interface{}{"type": param.Type}
		}
		paramSchema["description"] = param.Description
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, err := range result.Errors() {
			errs = append(errs, err.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

// truncateOutput truncates output if it exceeds the size limit
func (te *ToolExecutor) truncateOutput(output interface{}) (interface{}, bool) {
	maxSize := te.opts.MaxOutputBytes

	var str string
	switch v := output.(type) {
	case nil:
		return nil, false
	case string:
		str = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			str = fmt.Sprintf("%v", v)
		} else {
			str = string(data)
		}
		if len(str) <= maxSize {
			return output, false
		}
	}

	if len(str) <= maxSize {
		return output, false
	}

	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxSize).
		Msg("Output truncated")

	return CutAtRuneBoundary(str, maxSize) + "\n... [output truncated]", true
}

// CutAtRuneBoundary returns the longest prefix of s that fits in n bytes
// without splitting a UTF-8 sequence
func CutAtRuneBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

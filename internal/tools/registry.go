package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/metrics"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

const tracerName = "toolgate.tools"

// ErrCancelled is reported for calls that did not run, or stopped waiting,
// because the turn was cancelled.
var ErrCancelled = errors.New("operation cancelled")

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry holds all registered tools
type Registry struct {
	tools map[string]entry
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry. The tool's schema is compiled once
// here; a schema that does not compile leaves the tool unvalidated and is
// logged.
func (r *Registry) Register(tool Tool) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Schema()))
	if err != nil {
		L_warn("tools: schema does not compile, arguments will not be validated", "tool", tool.Name(), "error", err)
		schema = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = entry{tool: tool, schema: schema}
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Has returns true if a tool with the given name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Call runs a tool and returns the string handed back to the model.
func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) string {
	return r.Execute(ctx, name, input).String()
}

// Execute runs a tool by name. Every failure, including a panic inside the
// tool, comes back as an error envelope.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (env types.Envelope) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	defer func() {
		metrics.MetricSince("tools", name, start)
		if env.IsError() {
			span.SetStatus(codes.Error, env.Error())
			metrics.MetricFailWithReason("tools", name, env.Error())
			L_debug("tools: call failed", "tool", name, "error", env.Error(), "elapsed", time.Since(start))
		} else {
			metrics.MetricSuccess("tools", name)
			L_debug("tools: call completed", "tool", name, "elapsed", time.Since(start))
		}
		span.End()
	}()

	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		L_warn("tools: unknown tool requested", "tool", name)
		return types.Failuref("unknown tool: %s", name)
	}

	if ctx.Err() != nil {
		return types.FromError(ErrCancelled)
	}

	if len(strings.TrimSpace(string(input))) == 0 {
		input = json.RawMessage("{}")
	}
	if err := validate(e.schema, input); err != nil {
		return types.FromError(err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			L_error("tools: panic in tool", "tool", name, "panic", rec, "stack", string(debug.Stack()))
			span.RecordError(fmt.Errorf("panic: %v", rec))
			env = types.Failuref("internal error in %s", name)
		}
	}()

	result, err := e.tool.Execute(ctx, input)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return types.FromError(ErrCancelled)
		}
		return types.FromError(err)
	}
	return result
}

func validate(schema *gojsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ToolCall is one tool invocation emitted by the model.
type ToolCall struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// CallResult pairs a call with the string returned to the model.
type CallResult struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// RunCalls resolves calls one at a time in the order given. Once ctx is
// cancelled the remaining calls are not run and report cancellation.
func (r *Registry) RunCalls(ctx context.Context, calls []ToolCall) []CallResult {
	results := make([]CallResult, 0, len(calls))
	for _, call := range calls {
		out := CallResult{ID: call.ID, Name: call.Name}
		if ctx.Err() != nil {
			out.Output = types.FromError(ErrCancelled).String()
		} else {
			out.Output = r.Call(ctx, call.Name, call.Input)
		}
		results = append(results, out)
	}
	return results
}

// List returns all registered tool names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tool definitions sorted by name
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, ToDefinition(e.tool))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// OpenAITools returns the definitions in the OpenAI function-calling format.
func (r *Registry) OpenAITools() []openai.Tool {
	defs := r.Definitions()
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

// AnthropicTools returns the definitions in the Anthropic messages format.
func (r *Registry) AnthropicTools() []anthropic.ToolUnionParam {
	defs := r.Definitions()
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Properties: d.InputSchema["properties"]}
		if req, ok := d.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// BuildToolSummary generates a system prompt section listing available tools.
//
//	## Available Tools
//	- db_query: Run a read or write operation against the document store.
//	- update_memory: Replace the agent's saved memory.
func (r *Registry) BuildToolSummary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return ""
	}

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("## Available Tools\n")
	sb.WriteString("Tool names are case-sensitive. Call tools exactly as listed.\n")

	for _, name := range names {
		summary := truncateDescription(r.tools[name].tool.Description(), 100)
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, summary))
	}

	return sb.String()
}

// truncateDescription shortens a description for the summary view
func truncateDescription(desc string, maxLen int) string {
	if idx := strings.Index(desc, ". "); idx > 0 && idx < maxLen {
		return desc[:idx+1]
	}

	if len(desc) <= maxLen {
		return desc
	}

	// cut at a word boundary
	truncated := desc[:maxLen]
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

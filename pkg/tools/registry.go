// Package tools implements the orchestrator's fixed tool set (C8): JSON
// schema tool definitions, the per-state permission filter from spec §4.3,
// and the handlers that mutate an orchestrator agent in response to a tool
// call.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/state"
)

// Registry holds the compiled tool catalog: definitions, their compiled
// JSON schemas (for call-argument validation), and their handlers.
type Registry struct {
	byName   map[string]llm.ToolDefinition
	compiled map[string]*jsonschema.Schema
}

// NewRegistry compiles every tool's input schema once, so each dispatch
// call only validates — it never recompiles. Compile failure is a
// programmer error (a malformed built-in schema), so it panics rather than
// propagating, matching how the teacher's agent.NewBaseAgent panics on a
// nil controller.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]llm.ToolDefinition, len(definitions)),
		compiled: make(map[string]*jsonschema.Schema, len(definitions)),
	}
	for _, def := range definitions {
		r.byName[def.Name] = def

		var doc any
		if err := json.Unmarshal(def.InputSchema, &doc); err != nil {
			panic(fmt.Sprintf("tool %s: invalid schema JSON: %v", def.Name, err))
		}
		c := jsonschema.NewCompiler()
		resourceName := def.Name + ".json"
		if err := c.AddResource(resourceName, doc); err != nil {
			panic(fmt.Sprintf("tool %s: add schema resource: %v", def.Name, err))
		}
		schema, err := c.Compile(resourceName)
		if err != nil {
			panic(fmt.Sprintf("tool %s: compile schema: %v", def.Name, err))
		}
		r.compiled[def.Name] = schema
	}
	return r
}

// ForState returns the tool definitions permitted in s, per spec §4.3's
// table. Returns an empty slice for terminal states or any state with no
// declared permission entry.
func (r *Registry) ForState(s state.PipelineState) []llm.ToolDefinition {
	names := permitted[s]
	out := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}

// IsPermitted reports whether toolName may be called while in state s.
func (r *Registry) IsPermitted(s state.PipelineState, toolName string) bool {
	for _, name := range permitted[s] {
		if name == toolName {
			return true
		}
	}
	return false
}

// Dispatch validates call's arguments against the tool's compiled schema,
// rejects calls to tools not permitted in target's current state, and
// otherwise runs the tool's handler. The returned ToolResult.IsError is the
// sole error-signaling channel back to the LLM; the error return is
// reserved for handler-internal failures that still produced a valid
// ToolResult (always nil in the current handler set, kept for symmetry
// with Handler's signature).
func (r *Registry) Dispatch(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	def, known := r.byName[call.Name]
	if !known {
		return fail(call, fmt.Sprintf("unknown tool %q", call.Name)), nil
	}
	if !r.IsPermitted(target.State(), call.Name) {
		return fail(call, fmt.Sprintf("tool %q is not permitted in state %s", call.Name, target.State())), nil
	}

	if len(def.InputSchema) > 0 {
		var args any
		if len(call.Arguments) == 0 {
			args = map[string]any{}
		} else if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return fail(call, "arguments are not valid JSON: "+err.Error()), nil
		}
		if err := r.compiled[call.Name].Validate(args); err != nil {
			return fail(call, "arguments failed schema validation: "+err.Error()), nil
		}
	}

	handler, known := handlers[call.Name]
	if !known {
		return fail(call, fmt.Sprintf("tool %q has no handler", call.Name)), nil
	}
	return handler(target, call)
}

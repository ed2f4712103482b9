// Package tools defines the tools available to the agent and the
// dispatcher that runs them.
//
// The registry is the single source of truth: the schema sent to the
// model and the dispatch table are both derived from the registered
// tools, in registration order.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Result is the JSON object a tool returns to the model. Failures are
// results too: {"error": "..."}.
type Result = map[string]any

// Handler runs a tool with decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry. Registering a name twice
// replaces the handler but keeps the original position.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Schema returns the function declarations for the model, in
// registration order.
func (r *Registry) Schema() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// ErrorResult builds the {"error": msg} result.
func ErrorResult(msg string) Result {
	return Result{"error": msg}
}

// Dispatch runs the named tool with JSON-encoded arguments. It never
// fails: unknown tools, malformed arguments, handler errors and panics
// all come back as error results the model can read.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) Result {
	tool := r.tools[name]
	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return ErrorResult("unknown tool: " + name)
	}

	args := map[string]any{}
	if s := strings.TrimSpace(argsJSON); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			r.logger.Warn("invalid tool arguments", "tool", name, "error", err)
			return ErrorResult("invalid arguments: " + err.Error())
		}
	}

	res, err := r.call(ctx, tool, args)
	switch {
	case errors.Is(err, ErrUnavailable):
		r.logger.Debug("tool not configured", "tool", name, "error", err)
		return ErrorResult(err.Error())
	case err != nil:
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return ErrorResult(err.Error())
	}
	if res == nil {
		res = Result{}
	}
	return res
}

func (r *Registry) call(ctx context.Context, tool *Tool, args map[string]any) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", tool.Name, "panic", p)
			res, err = nil, fmt.Errorf("%s panicked: %v", tool.Name, p)
		}
	}()
	return tool.Handler(ctx, args)
}

// Encode renders a result as the content of a tool message.
func Encode(res Result) string {
	b, err := json.Marshal(res)
	if err != nil {
		b, _ = json.Marshal(ErrorResult("unencodable result: " + err.Error()))
	}
	return string(b)
}

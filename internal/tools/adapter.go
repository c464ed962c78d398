// Package tools provides the callable capabilities bound to the planner:
// the structured-store query and the web search.
package tools

import (
	"context"
	"fmt"

	"cinequery"
)

// Func is the shape of a plain Go function exposed as a tool. The
// arguments arrive as the engine-authored JSON object; the result is
// conversation text.
type Func func(ctx context.Context, args map[string]any) (string, error)

// FuncTool adapts a standard Go function to the cinequery.Tool interface.
type FuncTool struct {
	fn        Func
	def       cinequery.ToolDefinition
	validator func(map[string]any) error
}

// Option configures a FuncTool.
type Option func(*FuncTool)

// WithDescription sets the tool description handed to the engine.
func WithDescription(description string) Option {
	return func(t *FuncTool) {
		t.def.Description = description
	}
}

// WithParameters sets the JSON schema for the tool's arguments.
func WithParameters(parameters map[string]any) Option {
	return func(t *FuncTool) {
		t.def.Parameters = parameters
	}
}

// WithValidator sets a custom validator for the tool's arguments.
func WithValidator(validator func(map[string]any) error) Option {
	return func(t *FuncTool) {
		t.validator = validator
	}
}

// NewFuncTool creates a new adapter for a Go function.
func NewFuncTool(name string, fn Func, options ...Option) *FuncTool {
	t := &FuncTool{
		fn: fn,
		def: cinequery.ToolDefinition{
			Name: name,
		},
		validator: func(args map[string]any) error {
			// Default validator just ensures arguments are not nil
			if args == nil {
				return fmt.Errorf("arguments cannot be nil")
			}
			return nil
		},
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// Execute implements the cinequery.Tool interface.
func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.fn == nil {
		return "", fmt.Errorf("tool function is nil")
	}

	if err := t.Validate(args); err != nil {
		return "", fmt.Errorf("argument validation failed for %s: %w", t.def.Name, err)
	}

	return t.fn(ctx, args)
}

// Definition implements the cinequery.Tool interface.
func (t *FuncTool) Definition() cinequery.ToolDefinition {
	return t.def
}

// Validate implements the cinequery.Tool interface.
func (t *FuncTool) Validate(args map[string]any) error {
	if t.validator != nil {
		return t.validator(args)
	}
	return nil
}

// Name implements the cinequery.Tool interface.
func (t *FuncTool) Name() string {
	return t.def.Name
}

package cinequery

import "context"

// Engine is the opaque reasoning capability: given a system instruction,
// a message history and an optional set of callable tools, it produces
// either a final text answer or an assistant entry requesting tool calls.
type Engine interface {
	Complete(ctx context.Context, req *EngineRequest) (*EngineResponse, error)
}

// Tool represents a named callable capability (store query, web search).
type Tool interface {
	// Execute performs the tool's action with the engine-supplied
	// arguments and returns its result as conversation text.
	Execute(ctx context.Context, args map[string]any) (string, error)

	// Definition returns the tool description handed to the engine.
	Definition() ToolDefinition

	// Validate checks if the provided arguments are valid for this tool.
	// Returns nil if valid, error otherwise.
	Validate(args map[string]any) error

	// Name returns the tool's name.
	Name() string
}

// Introspector discovers the structure of the backing store: column
// metadata plus a small fixed-size sample of rows.
type Introspector interface {
	Introspect(ctx context.Context) (SchemaProfile, error)

	// Fingerprint identifies the store/table pair this introspector
	// reads, used as the narrative cache key.
	Fingerprint() string
}

// Cache stores engine-generated schema narratives so that repeated
// sessions against an unchanged store skip the describe call.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

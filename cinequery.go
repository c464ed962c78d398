// Package cinequery answers natural language questions about a movie
// catalogue by orchestrating a reasoning engine, a SQLite store and a
// small set of tools through an explicit state machine.
package cinequery

import (
	"context"
	"fmt"
	"sync"

	"cinequery/internal/eventbus"
)

// Agent is the public entry point: it owns the injected components and
// runs one state machine per question.
type Agent struct {
	config       Config
	engine       Engine
	introspector Introspector
	cache        Cache
	eventBus     eventbus.EventBus
	ownsEventBus bool

	toolsMu sync.RWMutex
	tools   map[string]Tool

	asyncMu       sync.RWMutex
	asyncSessions map[string]*asyncSession
}

// AgentOption configures an Agent during construction.
type AgentOption func(*Agent)

// WithConfig sets the agent configuration.
func WithConfig(config Config) AgentOption {
	return func(a *Agent) {
		a.config = config
	}
}

// WithEngine sets the reasoning engine.
func WithEngine(engine Engine) AgentOption {
	return func(a *Agent) {
		a.engine = engine
	}
}

// WithIntrospector sets the store introspector.
func WithIntrospector(introspector Introspector) AgentOption {
	return func(a *Agent) {
		a.introspector = introspector
	}
}

// WithTools sets the tool registry.
func WithTools(tools map[string]Tool) AgentOption {
	return func(a *Agent) {
		a.tools = tools
	}
}

// WithCache sets the schema narrative cache.
func WithCache(cache Cache) AgentOption {
	return func(a *Agent) {
		a.cache = cache
	}
}

// WithEventBus sets a caller-owned event bus. The agent will not close
// a bus it did not create.
func WithEventBus(bus eventbus.EventBus) AgentOption {
	return func(a *Agent) {
		a.eventBus = bus
		a.ownsEventBus = false
	}
}

// New creates an Agent from the given options.
func New(options ...AgentOption) (*Agent, error) {
	a := &Agent{
		config:        DefaultConfig(),
		tools:         make(map[string]Tool),
		asyncSessions: make(map[string]*asyncSession),
	}

	for _, option := range options {
		option(a)
	}

	if a.engine == nil {
		return nil, NewConfigurationError("reasoning engine is required", nil)
	}
	if a.introspector == nil {
		return nil, NewConfigurationError("store introspector is required", nil)
	}
	if len(a.tools) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}
	for name, tool := range a.tools {
		if tool == nil {
			return nil, NewConfigurationError(fmt.Sprintf("tool '%s' is nil", name), nil)
		}
		if tool.Name() != name {
			return nil, NewConfigurationError(
				fmt.Sprintf("tool registered under '%s' reports name '%s'", name, tool.Name()), nil)
		}
	}

	if a.eventBus == nil && a.config.EnableEventBus {
		a.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(a.config.EventBusBufferSize),
			eventbus.WithWorkerCount(a.config.EventBusWorkerCount),
		)
		a.ownsEventBus = true
	}

	return a, nil
}

// Ask runs one question to completion and returns the finished session.
// The session is returned even on failure so callers can inspect the
// conversation and error stage.
func (a *Agent) Ask(ctx context.Context, question string) (*Session, error) {
	if question == "" {
		return nil, NewConfigurationError("question cannot be empty", nil)
	}

	s := NewSession(question)
	publish(ctx, a.eventBus, eventbus.NewEvent(eventbus.EventSessionStarted, question, "agent", nil))

	sm := a.createStateMachine()
	_, err := sm.Execute(ctx, s)
	if err != nil {
		publish(ctx, a.eventBus, eventbus.NewEvent(eventbus.EventSessionFailure, err, "agent",
			map[string]interface{}{"stage": s.ErrorStage}))
		return s, err
	}

	publish(ctx, a.eventBus, eventbus.NewEvent(eventbus.EventSessionSuccess, nil, "agent",
		map[string]interface{}{"planner_turns": s.PlannerTurns}))
	return s, nil
}

// RegisterTool adds a tool to the registry. Running sessions keep the
// registry they started with; registration affects only future
// sessions.
func (a *Agent) RegisterTool(tool Tool) error {
	if tool == nil {
		return NewConfigurationError("cannot register a nil tool", nil)
	}
	name := tool.Name()
	if name == "" {
		return NewConfigurationError("cannot register a tool without a name", nil)
	}

	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	if _, exists := a.tools[name]; exists {
		return NewConfigurationError(fmt.Sprintf("tool '%s' is already registered", name), nil)
	}
	a.tools[name] = tool
	return nil
}

// ToolByName looks up a registered tool.
func (a *Agent) ToolByName(name string) (Tool, bool) {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	tool, ok := a.tools[name]
	return tool, ok
}

// ListTools returns the definitions of all registered tools in stable
// name order.
func (a *Agent) ListTools() []ToolDefinition {
	return toolDefinitions(a.snapshotTools())
}

// snapshotTools copies the registry so a session never shares the live
// map with later registrations.
func (a *Agent) snapshotTools() map[string]Tool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	tools := make(map[string]Tool, len(a.tools))
	for name, tool := range a.tools {
		tools[name] = tool
	}
	return tools
}

// Close shuts down resources the agent owns.
func (a *Agent) Close() error {
	a.asyncMu.Lock()
	for _, as := range a.asyncSessions {
		as.cancel()
	}
	a.asyncMu.Unlock()

	if a.ownsEventBus && a.eventBus != nil {
		return a.eventBus.Close()
	}
	return nil
}

func (a *Agent) createStateMachine() *StateMachine {
	components := &Components{
		Engine:       a.engine,
		Introspector: a.introspector,
		Tools:        a.snapshotTools(),
		Cache:        a.cache,
		Config:       a.config,
	}
	return CreateSessionStateMachine(components, a.eventBus)
}

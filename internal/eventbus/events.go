package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Schema introspection events
	EventIntrospectionStarted EventType = "schema_introspection_started"
	EventIntrospectionSuccess EventType = "schema_introspection_success"
	EventIntrospectionFailure EventType = "schema_introspection_failure"

	// Schema description events
	EventDescriptionStarted EventType = "schema_description_started"
	EventDescriptionSuccess EventType = "schema_description_success"
	EventDescriptionFailure EventType = "schema_description_failure"
	EventDescriptionCached  EventType = "schema_description_cached"

	// Planner turn events
	EventPlannerTurnStarted EventType = "planner_turn_started"
	EventPlannerTurnSuccess EventType = "planner_turn_success"
	EventPlannerTurnFailure EventType = "planner_turn_failure"

	// Tool dispatch events
	EventToolDispatchStarted  EventType = "tool_dispatch_started"
	EventToolDispatchFinished EventType = "tool_dispatch_finished"
	EventToolCallStarted      EventType = "tool_call_started"
	EventToolCallSuccess      EventType = "tool_call_success"
	EventToolCallFailure      EventType = "tool_call_failure"

	// Session lifecycle events
	EventSessionStarted EventType = "session_started"
	EventSessionSuccess EventType = "session_success"
	EventSessionFailure EventType = "session_failure"

	// Async session lifecycle events
	EventAsyncSessionStarted   EventType = "async_session_started"
	EventAsyncSessionSuccess   EventType = "async_session_success"
	EventAsyncSessionFailure   EventType = "async_session_failure"
	EventAsyncSessionCancelled EventType = "async_session_cancelled"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types
	// Returns a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	// Returns a subscription ID that can be used to unsubscribe
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// Type returns the event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} {
	return e.payload
}

// Metadata returns additional information about the event
func (e *BaseEvent) Metadata() map[string]interface{} {
	return e.metadata
}

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

// Source returns information about what generated the event
func (e *BaseEvent) Source() string {
	return e.sourceInfo
}

// WithMetadata adds or updates a metadata entry and returns the same event
// so publishes can be chained.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

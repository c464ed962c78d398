package cinequery

import "fmt"

// Error codes for specific failure types
const (
	ErrCodeIntrospection = "INTROSPECTION_ERROR"
	ErrCodeDescription   = "DESCRIPTION_ERROR"
	ErrCodeEngine        = "ENGINE_ERROR"
	ErrCodeToolNotFound  = "TOOL_NOT_FOUND"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeLoopLimit     = "PLANNER_LOOP_LIMIT"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCancelled     = "SESSION_CANCELLED"
	ErrCodeTimeout       = "SESSION_TIMEOUT"
	ErrCodeCache         = "CACHE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// AgentError is a custom error type for cinequery specific errors.
type AgentError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeEngine)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "plan", "dispatch_tools")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentError.
func NewError(code, stage, message string, cause error) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
		Stage:   stage,
		Cause:   cause,
	}
}

// Specific error constructors

func NewIntrospectionError(cause error) *AgentError {
	return NewError(ErrCodeIntrospection, "introspect", "schema introspection failed", cause)
}

func NewDescriptionError(cause error) *AgentError {
	return NewError(ErrCodeDescription, "describe", "schema description failed", cause)
}

func NewEngineError(stage string, cause error) *AgentError {
	return NewError(ErrCodeEngine, stage, "reasoning engine call failed", cause)
}

func NewToolNotFoundError(stage, toolName string) *AgentError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewToolExecutionError(stage, toolName string, cause error) *AgentError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", toolName), cause)
}

func NewLoopLimitError(turns int) *AgentError {
	msg := fmt.Sprintf("planner requested tools on %d consecutive turns without terminating", turns)
	return NewError(ErrCodeLoopLimit, "plan", msg, nil)
}

func NewConfigurationError(message string, cause error) *AgentError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *AgentError {
	msg := "session cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("session cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewCacheError(stage, operation string, cause error) *AgentError {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *AgentError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

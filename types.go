package cinequery

import (
	"fmt"
	"strings"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	// RoleSystem marks a fixed instruction to the reasoning engine.
	RoleSystem Role = "system"
	// RoleUser marks the question (or a restated input) from the caller.
	RoleUser Role = "user"
	// RoleAssistant marks an engine-authored entry, possibly carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool marks the result of a dispatched tool call.
	RoleTool Role = "tool"
)

// Message is a single entry in the session conversation.
// Entries are append-only: once added to a session they are never
// altered or removed.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall names a tool the engine wants invoked. Arguments is the raw
// JSON object authored by the engine, passed through verbatim.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewSystemMessage builds a system-role entry.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a user-role entry.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewToolMessage builds a tool-result entry tagged with the call it answers.
func NewToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// IsToolRequest reports whether the entry asks for at least one tool call.
func (m Message) IsToolRequest() bool {
	return len(m.ToolCalls) > 0
}

// ToolDefinition describes a callable capability to the reasoning engine.
// Parameters is a JSON schema object for the tool's arguments.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// EngineRequest is one blocking call into the reasoning engine.
type EngineRequest struct {
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
	MaxTokens    int              `json:"max_tokens,omitempty"`
}

// EngineResponse is the engine's answer to a single request: either a
// terminal text message or an assistant entry carrying tool calls.
type EngineResponse struct {
	Message Message `json:"message"`
	Model   string  `json:"model,omitempty"`
	Usage   Usage   `json:"usage"`
}

// Usage reports token accounting for one engine call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ColumnProfile pairs a column's declared metadata with a column-aligned
// slice of sample values drawn from the first few rows of the table.
type ColumnProfile struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Examples []string `json:"examples"`
}

// SchemaProfile is the raw introspected structure of the target table:
// one profile per column, in declaration order.
type SchemaProfile []ColumnProfile

// String renders the profile in the format the schema-description prompt
// documents: [((<name>, <type>), <example>, <example>, ...), ...].
func (p SchemaProfile) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, col := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "((%s, %s)", col.Name, col.Type)
		for _, ex := range col.Examples {
			fmt.Fprintf(&sb, ", %q", ex)
		}
		sb.WriteString(")")
	}
	sb.WriteString("]")
	return sb.String()
}

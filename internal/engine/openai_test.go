package engine

import (
	"testing"

	"cinequery"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	e, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.Model() != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, e.Model())
	}
	if e.config.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", DefaultMaxTokens, e.config.MaxTokens)
	}
}

func TestConvertMessages_ReplaysToolExchange(t *testing.T) {
	messages := []cinequery.Message{
		cinequery.NewUserMessage("what was the budget?"),
		{
			Role: cinequery.RoleAssistant,
			ToolCalls: []cinequery.ToolCall{
				{ID: "call_1", Name: "sql_query", Arguments: `{"query":"SELECT 1"}`},
			},
		},
		cinequery.NewToolMessage("call_1", `[("15000000")]`),
		{Role: cinequery.RoleAssistant, Content: "The budget was 15 million."},
	}

	items := convertMessages(messages, "system instructions")

	// system + user + function_call + function_call_output + assistant
	if len(items) != 5 {
		t.Fatalf("expected 5 input items, got %d", len(items))
	}
	if items[2].OfFunctionCall == nil {
		t.Error("tool request should convert to a function_call item")
	} else if items[2].OfFunctionCall.CallID != "call_1" {
		t.Errorf("function_call should carry the call id, got %q", items[2].OfFunctionCall.CallID)
	}
	if items[3].OfFunctionCallOutput == nil {
		t.Error("tool result should convert to a function_call_output item")
	}
}

func TestConvertTools_CarriesSchemaAndDescription(t *testing.T) {
	tools := convertTools([]cinequery.ToolDefinition{
		{
			Name:        "sql_query",
			Description: "Runs a query.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
			},
		},
	})

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool")
	}
	if fn.Name != "sql_query" {
		t.Errorf("unexpected tool name: %q", fn.Name)
	}
	if fn.Description.Value != "Runs a query." {
		t.Errorf("description not carried: %q", fn.Description.Value)
	}
}

func TestEnsureObjectType(t *testing.T) {
	if got := ensureObjectType(nil); got["type"] != "object" {
		t.Errorf("nil schema should default to object, got %v", got)
	}
	if got := ensureObjectType(map[string]any{"properties": map[string]any{}}); got["type"] != "object" {
		t.Errorf("missing type should be filled in, got %v", got)
	}
	if got := ensureObjectType(map[string]any{"type": "object"}); got["type"] != "object" {
		t.Errorf("existing type should be preserved, got %v", got)
	}
}

// Package engine implements the reasoning capability behind the agent
// on top of the OpenAI Responses API.
package engine

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"cinequery"
)

// Defaults matching the production deployment.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
)

// Config holds the OpenAI connection settings.
type Config struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}
	return nil
}

// OpenAIEngine implements cinequery.Engine against the Responses API.
type OpenAIEngine struct {
	client *openai.Client
	config Config
}

// New creates an engine from the given configuration.
func New(config Config) (*OpenAIEngine, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIEngine{
		client: &client,
		config: config,
	}, nil
}

// Model returns the configured model identifier.
func (e *OpenAIEngine) Model() string {
	return e.config.Model
}

// Complete performs one blocking reasoning call.
func (e *OpenAIEngine) Complete(ctx context.Context, req *cinequery.EngineRequest) (*cinequery.EngineResponse, error) {
	params := e.buildParams(req)

	result, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai complete: %w", err)
	}

	return convertResponse(result), nil
}

func (e *OpenAIEngine) buildParams(req *cinequery.EngineRequest) responses.ResponseNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = e.config.MaxTokens
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(e.config.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(req.Messages, req.SystemPrompt),
		},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}

	// Temperature is always set explicitly: the planner runs at zero
	// for reproducible routing decisions.
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else {
		params.Temperature = openai.Float(e.config.Temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params
}

// convertMessages maps conversation entries onto Responses API input
// items. Assistant tool requests and their tool results are replayed as
// function_call / function_call_output pairs so the API can match them.
func convertMessages(messages []cinequery.Message, systemPrompt string) responses.ResponseInputParam {
	result := make(responses.ResponseInputParam, 0, len(messages)+1)

	if systemPrompt != "" {
		result = append(result, responses.ResponseInputItemParamOfMessage(systemPrompt, responses.EasyInputMessageRoleSystem))
	}

	for _, msg := range messages {
		switch msg.Role {
		case cinequery.RoleSystem:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case cinequery.RoleUser:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		case cinequery.RoleAssistant:
			if msg.Content != "" {
				result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range msg.ToolCalls {
				result = append(result, responses.ResponseInputItemParamOfFunctionCall(call.Arguments, call.ID, call.Name))
			}
		case cinequery.RoleTool:
			result = append(result, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
		}
	}

	return result
}

func convertTools(tools []cinequery.ToolDefinition) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = responses.ToolParamOfFunction(tool.Name, ensureObjectType(tool.Parameters), true)
		if tool.Description != "" {
			desc := openai.String(tool.Description)
			function := result[i].OfFunction
			function.Description = desc
			result[i].OfFunction = function
		}
	}
	return result
}

func convertResponse(result *responses.Response) *cinequery.EngineResponse {
	if result == nil {
		return &cinequery.EngineResponse{}
	}

	response := &cinequery.EngineResponse{
		Message: cinequery.Message{
			Role:    cinequery.RoleAssistant,
			Content: result.OutputText(),
		},
		Model: string(result.Model),
		Usage: cinequery.Usage{
			InputTokens:  int(result.Usage.InputTokens),
			OutputTokens: int(result.Usage.OutputTokens),
			TotalTokens:  int(result.Usage.TotalTokens),
		},
	}

	response.Message.ToolCalls = extractToolCalls(result)

	return response
}

func extractToolCalls(result *responses.Response) []cinequery.ToolCall {
	var toolCalls []cinequery.ToolCall
	for _, item := range result.Output {
		if item.Type != "function_call" {
			continue
		}
		id := item.CallID
		if id == "" {
			id = item.ID
		}
		toolCalls = append(toolCalls, cinequery.ToolCall{
			ID:        id,
			Name:      item.Name,
			Arguments: item.Arguments,
		})
	}
	return toolCalls
}

func ensureObjectType(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	if _, hasType := params["type"]; !hasType {
		params["type"] = "object"
	}
	return params
}

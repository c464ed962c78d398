package tools

import (
	"context"
	"fmt"
	"log"

	"cinequery"
	"cinequery/internal/store"
)

// SQLQueryToolName is how the planner addresses the store adapter.
const SQLQueryToolName = "sql_query"

const maxQueryLength = 4000

// NewSQLQueryTool exposes the structured store to the planner. Store
// execution failures are returned as descriptive text, not errors: the
// planner observes the failure as ordinary tool output and can revise
// its next query.
func NewSQLQueryTool(st *store.Store) cinequery.Tool {
	return NewFuncTool(
		SQLQueryToolName,
		func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			log.Printf("TOOL: executing sql query: %s", query)

			rows, err := st.Query(ctx, query)
			if err != nil {
				// Errors become data: the failure is a first-class
				// value in the conversation, never an exception.
				return fmt.Sprintf("Error occurred during sql execution: %v", err), nil
			}
			return store.FormatRows(rows), nil
		},
		WithDescription("Executes a given SQL query on the movie catalogue SQLite database and returns the resulting rows, or a description of the execution error."),
		WithParameters(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The SQL query to be executed.",
				},
			},
			"required": []string{"query"},
		}),
		WithValidator(validateSQLQueryArgs),
	)
}

// validateSQLQueryArgs validates the arguments for the sql_query tool.
func validateSQLQueryArgs(args map[string]any) error {
	raw, ok := args["query"]
	if !ok {
		return fmt.Errorf("missing sql query (expected at key 'query')")
	}

	query, ok := raw.(string)
	if !ok {
		return fmt.Errorf("sql query must be a string, got %T", raw)
	}

	if len(query) == 0 {
		return fmt.Errorf("sql query cannot be empty")
	}

	if len(query) > maxQueryLength {
		return fmt.Errorf("sql query too long (max %d characters)", maxQueryLength)
	}

	return nil
}

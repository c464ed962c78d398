package tools

import (
	"net/http"

	"cinequery"
	"cinequery/internal/store"
)

// Setup builds the standard toolset bound to the given catalogue store:
// the SQL query adapter and the web search fallback.
func Setup(st *store.Store) map[string]cinequery.Tool {
	return map[string]cinequery.Tool{
		SQLQueryToolName:  NewSQLQueryTool(st),
		WebSearchToolName: NewWebSearchTool(http.DefaultClient),
	}
}

package tools

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"cinequery"
)

// WebSearchToolName is how the planner addresses the web lookup.
const WebSearchToolName = "web_search"

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
	searchTimeout     = 30 * time.Second
	maxResponseBytes  = 1 << 20 // 1MB
)

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// NewWebSearchTool exposes a DuckDuckGo HTML search for facts absent
// from the catalogue (e.g. missing budget information). No API key
// required.
func NewWebSearchTool(client *http.Client) cinequery.Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return NewFuncTool(
		WebSearchToolName,
		func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			maxResults := intArg(args, "max_results", defaultMaxResults)
			if maxResults > maxMaxResults {
				maxResults = maxMaxResults
			}
			log.Printf("TOOL: web search: query=%q, max_results=%d", query, maxResults)

			results, err := searchDuckDuckGo(ctx, client, query, maxResults)
			if err != nil {
				return "", fmt.Errorf("search failed: %w", err)
			}

			if len(results) == 0 {
				return "No results found for: " + query, nil
			}
			return FormatSearchResults(query, results), nil
		},
		WithDescription("Performs a web search for information missing from the movie catalogue and returns a list of result snippets."),
		WithParameters(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default: 5).",
				},
			},
			"required": []string{"query"},
		}),
		WithValidator(validateWebSearchArgs),
	)
}

// intArg reads an integer argument that may arrive as a JSON number.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

// validateWebSearchArgs validates the arguments for the web_search tool.
func validateWebSearchArgs(args map[string]any) error {
	raw, ok := args["query"]
	if !ok {
		return fmt.Errorf("missing search query (expected at key 'query')")
	}

	query, ok := raw.(string)
	if !ok {
		return fmt.Errorf("search query must be a string, got %T", raw)
	}

	if len(query) == 0 {
		return fmt.Errorf("search query cannot be empty")
	}

	if len(query) > 1000 {
		return fmt.Errorf("search query too long (max 1000 characters)")
	}

	return nil
}

// searchDuckDuckGo performs a search using the DuckDuckGo HTML interface.
func searchDuckDuckGo(ctx context.Context, client *http.Client, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to look like a browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseSearchResults(string(body), maxResults)
}

// parseSearchResults extracts search results from DuckDuckGo HTML.
func parseSearchResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult

	// DuckDuckGo HTML uses class="result results_links ..." divs
	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result") && strings.Contains(attr.Val, "results_links") {
					result := extractResult(n)
					if result.URL != "" && result.Title != "" {
						results = append(results, result)
					}
					return
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) SearchResult {
	var result SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					if strings.Contains(attr.Val, "result__a") {
						result.URL = attrValue(n, "href")
						result.Title = textContent(n)
					} else if strings.Contains(attr.Val, "result__snippet") {
						result.Snippet = textContent(n)
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(n)

	// Clean up the URL if it's a DuckDuckGo redirect
	if strings.HasPrefix(result.URL, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(result.URL, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			result.URL = decoded
		}
	}

	return result
}

// attrValue returns the value of an attribute.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent returns all text content within a node.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// FormatSearchResults renders results as planner-readable text.
func FormatSearchResults(query string, results []SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, result.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", result.URL)
		if result.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", result.Snippet)
		}
	}
	return sb.String()
}

package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const searchFixture = `
<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fmovie-budget&amp;rut=abc">Example Film budget</a>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fmovie-budget">The production budget was 15 million dollars.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.org/second">Second result</a>
  <a class="result__snippet" href="https://example.org/second">Another snippet.</a>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	results, err := parseSearchResults(searchFixture, 5)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Title != "Example Film budget" {
		t.Errorf("unexpected title: %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/movie-budget" {
		t.Errorf("redirect URL should be decoded, got %q", results[0].URL)
	}
	if !strings.Contains(results[0].Snippet, "15 million") {
		t.Errorf("unexpected snippet: %q", results[0].Snippet)
	}
}

func TestParseSearchResults_HonorsLimit(t *testing.T) {
	results, err := parseSearchResults(searchFixture, 1)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestWebSearchTool_Execute(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	// Redirect all outbound requests at the fixture server.
	client := &http.Client{
		Transport: rewriteTransport{target: srv.URL},
	}
	tool := NewWebSearchTool(client)

	out, err := tool.Execute(context.Background(), map[string]any{
		"query": "Example Film budget",
		// JSON numbers decode as float64.
		"max_results": float64(3),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotQuery != "Example Film budget" {
		t.Errorf("query not forwarded, got %q", gotQuery)
	}
	if !strings.Contains(out, "Example Film budget") || !strings.Contains(out, "https://example.com/movie-budget") {
		t.Errorf("formatted results missing expected content:\n%s", out)
	}
}

func TestWebSearchTool_ValidatesArguments(t *testing.T) {
	tool := NewWebSearchTool(nil)

	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"wrong type", map[string]any{"query": 7}},
		{"empty query", map[string]any{"query": ""}},
		{"oversized query", map[string]any{"query": strings.Repeat("q", 1001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tool.Execute(context.Background(), tc.args); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIntArg(t *testing.T) {
	if got := intArg(map[string]any{"n": float64(3)}, "n", 5); got != 3 {
		t.Errorf("float64 argument ignored, got %d", got)
	}
	if got := intArg(map[string]any{"n": -1}, "n", 5); got != 5 {
		t.Errorf("non-positive value should fall back, got %d", got)
	}
	if got := intArg(map[string]any{}, "n", 5); got != 5 {
		t.Errorf("missing value should fall back, got %d", got)
	}
}

// rewriteTransport sends every request to the test server regardless of
// the original host.
type rewriteTransport struct {
	target string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := url.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}

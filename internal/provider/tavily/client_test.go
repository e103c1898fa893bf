package tavily

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T, path string, fn func(t *testing.T, body map[string]interface{}) (int, string)) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status, reply := fn(t, body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tvly-key", srv.Client(), nil, zaptest.NewLogger(t))
}

func TestSearch(t *testing.T) {
	c := newServer(t, "/search", func(t *testing.T, body map[string]interface{}) (int, string) {
		assert.Equal(t, "go modules", body["query"])
		assert.Equal(t, float64(4), body["max_results"])
		assert.Equal(t, "advanced", body["search_depth"])
		assert.Equal(t, false, body["include_raw_content"])
		assert.Equal(t, false, body["include_answer"])
		return 200, `{"results":[{"title":"Go Modules","url":"https://go.dev/ref/mod","content":"Reference","score":0.9}]}`
	})

	results, err := c.Search(context.Background(), "go modules", 4)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "Go Modules", URL: "https://go.dev/ref/mod", Content: "Reference", Score: 0.9}}, results)
}

func TestSearchHTTPError(t *testing.T) {
	c := newServer(t, "/search", func(*testing.T, map[string]interface{}) (int, string) {
		return 432, `{"detail":"plan limit"}`
	})

	_, err := c.Search(context.Background(), "q", 1)
	var se *executor.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 432, se.Code)
}

func TestExtract(t *testing.T) {
	c := newServer(t, "/extract", func(t *testing.T, body map[string]interface{}) (int, string) {
		assert.Equal(t, []interface{}{"https://example.com"}, body["urls"])
		assert.Equal(t, "markdown", body["format"])
		return 200, `{"results":[{"url":"https://example.com","raw_content":"# Example"}]}`
	})

	md, err := c.Extract(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "# Example", md)
}

func TestExtractBlankContent(t *testing.T) {
	c := newServer(t, "/extract", func(*testing.T, map[string]interface{}) (int, string) {
		return 200, `{"results":[{"url":"https://example.com","raw_content":"   "}]}`
	})

	md, err := c.Extract(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestMap(t *testing.T) {
	c := newServer(t, "/map", func(t *testing.T, body map[string]interface{}) (int, string) {
		assert.Equal(t, "https://docs.example.com", body["url"])
		assert.Equal(t, float64(2), body["max_depth"])
		assert.Equal(t, float64(20), body["max_breadth"])
		assert.Equal(t, float64(50), body["limit"])
		assert.Equal(t, float64(30), body["timeout"])
		_, hasInstructions := body["instructions"]
		assert.False(t, hasInstructions)
		return 200, `{"base_url":"docs.example.com","results":["https://docs.example.com/a"],"response_time":1.5}`
	})

	res, err := c.Map(context.Background(), MapRequest{URL: "https://docs.example.com", MaxDepth: 2, MaxBreadth: 20, Limit: 50, Timeout: 30})
	require.NoError(t, err)
	assert.Equal(t, MapResult{BaseURL: "docs.example.com", Results: []string{"https://docs.example.com/a"}, ResponseTime: 1.5}, res)
}

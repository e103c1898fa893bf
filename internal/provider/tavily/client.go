package tavily

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/ratecontrol"
	"go.uber.org/zap"
)

// Provider is the rate limiter and breaker key for Tavily calls
const Provider = "tavily"

// DefaultURL is the public API endpoint
const DefaultURL = "https://api.tavily.com"

const (
	searchTimeout  = 90 * time.Second
	extractTimeout = 60 * time.Second
	mapSlack       = 10 * time.Second
)

// Client calls the Tavily search, extract and map endpoints. Each call is a
// single attempt; callers treat failures as "no results".
type Client struct {
	baseURL string
	apiKey  string
	doer    executor.Doer
	pacer   *ratecontrol.Pacer
	logger  *zap.Logger
}

// NewClient creates a client; an empty baseURL uses DefaultURL
func NewClient(baseURL, apiKey string, doer executor.Doer, pacer *ratecontrol.Pacer, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		doer:    doer,
		pacer:   pacer,
		logger:  logger,
	}
}

// Result is one search hit
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeAnswer     bool   `json:"include_answer"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search returns up to maxResults hits using advanced search depth
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var resp searchResponse
	err := c.post(ctx, "/search", searchRequest{
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Tavily search", zap.String("query", query), zap.Int("results", len(resp.Results)))
	return resp.Results, nil
}

type extractRequest struct {
	URLs   []string `json:"urls"`
	Format string   `json:"format"`
}

type extractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

// Extract returns the page as Markdown, or "" when Tavily found no content
func (c *Client) Extract(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	var resp extractResponse
	if err := c.post(ctx, "/extract", extractRequest{URLs: []string{url}, Format: "markdown"}, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 || strings.TrimSpace(resp.Results[0].RawContent) == "" {
		return "", nil
	}
	return resp.Results[0].RawContent, nil
}

// MapRequest describes a site traversal
type MapRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions,omitempty"`
	MaxDepth     int    `json:"max_depth"`
	MaxBreadth   int    `json:"max_breadth"`
	Limit        int    `json:"limit"`
	Timeout      int    `json:"timeout"` // seconds, enforced server side
}

// MapResult is the discovered site structure
type MapResult struct {
	BaseURL      string   `json:"base_url"`
	Results      []string `json:"results"`
	ResponseTime float64  `json:"response_time"`
}

// Map traverses a site from req.URL. The HTTP call is bounded by req.Timeout plus ten seconds.
func (c *Client) Map(ctx context.Context, req MapRequest) (MapResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second+mapSlack)
	defer cancel()

	var resp MapResult
	if err := c.post(ctx, "/map", req, &resp); err != nil {
		return MapResult{}, err
	}
	if resp.Results == nil {
		resp.Results = []string{}
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	if err := c.pacer.Wait(ctx, Provider); err != nil {
		return err
	}
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	return executor.SendJSON(ctx, c.doer, http.MethodPost, c.baseURL+path, header, in, out)
}

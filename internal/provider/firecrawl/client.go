package firecrawl

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/ratecontrol"
	"go.uber.org/zap"
)

// Provider is the rate limiter and breaker key for Firecrawl calls
const Provider = "firecrawl"

// DefaultURL is the public v2 API endpoint
const DefaultURL = "https://api.firecrawl.dev/v2"

const (
	requestTimeout  = 90 * time.Second
	scrapeTimeoutMS = 60000
	waitForStepMS   = 1500
)

// Client calls the Firecrawl search and scrape endpoints
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

// Result is one web search hit
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Data struct {
		Web []Result `json:"web"`
	} `json:"data"`
}

// Search returns up to limit web results
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp searchResponse
	if err := c.post(ctx, "/search", searchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("Firecrawl search", zap.String("query", query), zap.Int("results", len(resp.Data.Web)))
	return resp.Data.Web, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	Timeout int      `json:"timeout"`
	WaitFor int      `json:"waitFor"`
}

type scrapeResponse struct {
	Data struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Scrape renders url to Markdown. Up to attempts requests are made while the
// page comes back empty, each waiting 1.5s longer for client-side rendering.
// Any request error aborts immediately. Empty pages yield "" and a nil error.
func (c *Client) Scrape(ctx context.Context, url string, attempts int) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		md, err := c.scrapeOnce(ctx, scrapeRequest{
			URL:     url,
			Formats: []string{"markdown"},
			Timeout: scrapeTimeoutMS,
			WaitFor: (attempt + 1) * waitForStepMS,
		})
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(md) != "" {
			return md, nil
		}
		c.logger.Debug("Firecrawl returned empty markdown",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
		)
	}
	return "", nil
}

func (c *Client) scrapeOnce(ctx context.Context, req scrapeRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp scrapeResponse
	if err := c.post(ctx, "/scrape", req, &resp); err != nil {
		return "", err
	}
	return resp.Data.Markdown, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	if err := c.pacer.Wait(ctx, Provider); err != nil {
		return err
	}
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	return executor.SendJSON(ctx, c.doer, http.MethodPost, c.baseURL+path, header, in, out)
}

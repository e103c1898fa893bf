package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/firecrawl"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"go.uber.org/zap"
)

const (
	pageTimeout   = 30 * time.Second
	maxPageBytes  = 5 << 20
	pageUserAgent = "Mozilla/5.0 (compatible; shannon-research/1.0)"
)

// Fetch sources
const (
	FetchedByTavily    = "tavily"
	FetchedByFirecrawl = "firecrawl"
	FetchedDirect      = "direct"
)

// FetchResult is a page rendered as Markdown
type FetchResult struct {
	URL      string `json:"url"`
	Content  string `json:"content"`
	Provider string `json:"provider"`
}

// Fetch returns a page as Markdown, trying Tavily extract, then Firecrawl
// scrape, then a direct download converted from HTML
func (s *Service) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	if err := validateURL(rawURL); err != nil {
		return FetchResult{URL: rawURL}, err
	}
	settings := s.cfg.Current()
	s.sink.Record("begin fetch: "+rawURL, true)

	if settings.TavilyEnabled() {
		md, err := s.clients.Tavily(settings).Extract(ctx, rawURL)
		metrics.RecordExtraProvider(tavily.Provider, "extract", nonEmpty(md), err)
		if err != nil {
			s.logger.Info("Tavily extract failed", zap.String("url", rawURL), zap.Error(err))
		} else if md != "" {
			return FetchResult{URL: rawURL, Content: md, Provider: FetchedByTavily}, nil
		}
	}

	if settings.FirecrawlEnabled() {
		md, err := s.clients.Firecrawl(settings).Scrape(ctx, rawURL, settings.RetryMaxAttempts)
		metrics.RecordExtraProvider(firecrawl.Provider, "scrape", nonEmpty(md), err)
		if err != nil {
			s.logger.Info("Firecrawl scrape failed", zap.String("url", rawURL), zap.Error(err))
		} else if md != "" {
			return FetchResult{URL: rawURL, Content: md, Provider: FetchedByFirecrawl}, nil
		}
	}

	if s.pages != nil {
		md, err := s.fetchPage(ctx, rawURL)
		if err != nil {
			s.logger.Info("Direct fetch failed", zap.String("url", rawURL), zap.Error(err))
		} else if strings.TrimSpace(md) != "" {
			return FetchResult{URL: rawURL, Content: md, Provider: FetchedDirect}, nil
		}
	}

	s.sink.Record("fetch failed: "+rawURL, true)
	if !settings.TavilyEnabled() && !settings.FirecrawlEnabled() {
		return FetchResult{URL: rawURL}, NewError(CodeConfigError, "configuration error: neither TAVILY_API_KEY nor FIRECRAWL_API_KEY is configured")
	}
	return FetchResult{URL: rawURL}, NewError(CodeFetchFailed, "all extraction services failed")
}

func (s *Service) fetchPage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", pageUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := s.pages.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", &executor.StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		return PageMarkdown(body)
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return string(body), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// MapRequest bounds a site traversal
type MapRequest struct {
	URL          string
	Instructions string
	MaxDepth     int
	MaxBreadth   int
	Limit        int
	Timeout      int
}

// DefaultMapRequest returns the default traversal bounds for url
func DefaultMapRequest(url string) MapRequest {
	return MapRequest{URL: url, MaxDepth: 1, MaxBreadth: 20, Limit: 50, Timeout: 150}
}

func (r MapRequest) validate() error {
	if err := validateURL(r.URL); err != nil {
		return err
	}
	switch {
	case r.MaxDepth < 1 || r.MaxDepth > 5:
		return NewError(CodeInvalidRequest, "max_depth must be between 1 and 5")
	case r.MaxBreadth < 1 || r.MaxBreadth > 500:
		return NewError(CodeInvalidRequest, "max_breadth must be between 1 and 500")
	case r.Limit < 1 || r.Limit > 500:
		return NewError(CodeInvalidRequest, "limit must be between 1 and 500")
	case r.Timeout < 10 || r.Timeout > 150:
		return NewError(CodeInvalidRequest, "timeout must be between 10 and 150")
	}
	return nil
}

// Map discovers the URLs of a site through Tavily
func (s *Service) Map(ctx context.Context, req MapRequest) (tavily.MapResult, error) {
	if err := req.validate(); err != nil {
		return tavily.MapResult{}, err
	}
	settings := s.cfg.Current()
	if !settings.TavilyEnabled() {
		return tavily.MapResult{}, NewError(CodeConfigError, "configuration error: TAVILY_API_KEY is not configured")
	}

	res, err := s.clients.Tavily(settings).Map(ctx, tavily.MapRequest{
		URL:          req.URL,
		Instructions: req.Instructions,
		MaxDepth:     req.MaxDepth,
		MaxBreadth:   req.MaxBreadth,
		Limit:        req.Limit,
		Timeout:      req.Timeout,
	})
	metrics.RecordExtraProvider(tavily.Provider, "map", len(res.Results), err)
	if err != nil {
		s.logger.Warn("Map failed", zap.String("url", req.URL), zap.Error(err))
		var se *executor.StatusError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return tavily.MapResult{}, NewError(CodeTimeout, fmt.Sprintf("map timed out after %ds", req.Timeout))
		case errors.As(err, &se):
			return tavily.MapResult{}, NewError(CodeMapFailed, se.Error())
		default:
			return tavily.MapResult{}, NewError(CodeMapFailed, err.Error())
		}
	}
	return res, nil
}

func nonEmpty(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return 1
}

// providerError converts a provider failure into a structured error
func providerError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, "provider request timed out")
	}
	return NewError(CodeProviderError, err.Error())
}

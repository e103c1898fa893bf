package search

import (
	"context"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/firecrawl"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"github.com/Kocoro-lab/Shannon/go/research/internal/ratecontrol"
	"go.uber.org/zap"
)

// GrokClient is the conversational search provider
type GrokClient interface {
	Search(ctx context.Context, req grok.SearchRequest) (string, error)
	Describe(ctx context.Context, url string) (grok.Description, error)
	Rank(ctx context.Context, query, block string, total int) ([]int, error)
	ListModels(ctx context.Context) ([]string, error)
	ProbeModels(ctx context.Context) grok.Probe
}

// TavilyClient is the Tavily supplementary provider
type TavilyClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]tavily.Result, error)
	Extract(ctx context.Context, url string) (string, error)
	Map(ctx context.Context, req tavily.MapRequest) (tavily.MapResult, error)
}

// FirecrawlClient is the Firecrawl supplementary provider
type FirecrawlClient interface {
	Search(ctx context.Context, query string, limit int) ([]firecrawl.Result, error)
	Scrape(ctx context.Context, url string, attempts int) (string, error)
}

// Clients builds provider clients for a settings snapshot, so that reloaded
// credentials and retry parameters apply to the next request
type Clients interface {
	Grok(s config.Settings, model string) GrokClient
	Tavily(s config.Settings) TavilyClient
	Firecrawl(s config.Settings) FirecrawlClient
}

// ProviderClients builds real clients over long-lived breaker-guarded
// transports and a shared pacer
type ProviderClients struct {
	GrokDoer      executor.Doer
	TavilyDoer    executor.Doer
	FirecrawlDoer executor.Doer
	Pacer         *ratecontrol.Pacer
	Logger        *zap.Logger
}

func (p *ProviderClients) Grok(s config.Settings, model string) GrokClient {
	return grok.NewClient(grok.Config{
		APIURL: s.APIURL,
		APIKey: s.APIKey,
		Model:  model,
		Retry: executor.Config{
			MaxAttempts: s.RetryMaxAttempts,
			Multiplier:  s.RetryMultiplier,
			MaxWait:     s.RetryMaxWait,
		},
	}, p.GrokDoer, p.Logger, executor.WithPacer(p.Pacer, grok.Provider))
}

func (p *ProviderClients) Tavily(s config.Settings) TavilyClient {
	return tavily.NewClient(s.TavilyAPIURL, s.TavilyAPIKey, p.TavilyDoer, p.Pacer, p.Logger)
}

func (p *ProviderClients) Firecrawl(s config.Settings) FirecrawlClient {
	return firecrawl.NewClient(s.FirecrawlAPIURL, s.FirecrawlAPIKey, p.FirecrawlDoer, p.Pacer, p.Logger)
}

// grokReviewer sends reflection and validation prompts without the search prompt
type grokReviewer struct{ client GrokClient }

func (r grokReviewer) Review(ctx context.Context, systemPrompt, message string) (string, error) {
	return r.client.Search(ctx, grok.SearchRequest{
		Query:             message,
		History:           []grok.ChatMessage{{Role: "system", Content: systemPrompt}},
		SkipDefaultPrompt: true,
	})
}

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/firecrawl"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"github.com/Kocoro-lab/Shannon/go/research/internal/sources"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeGrok struct {
	mu        sync.Mutex
	reply     func(req grok.SearchRequest) (string, error)
	requests  []grok.SearchRequest
	models    []string
	modelsErr error
	listCalls int
	describe  grok.Description
	rank      []int
	rankErr   error
	probe     grok.Probe
}

func (f *fakeGrok) Search(_ context.Context, req grok.SearchRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return "", errors.New("no reply scripted")
	}
	return reply(req)
}

func (f *fakeGrok) searchRequests() []grok.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]grok.SearchRequest, 0, len(f.requests))
	for _, r := range f.requests {
		if !r.SkipDefaultPrompt {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeGrok) Describe(_ context.Context, url string) (grok.Description, error) {
	d := f.describe
	d.URL = url
	return d, nil
}

func (f *fakeGrok) Rank(_ context.Context, _, _ string, total int) ([]int, error) {
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	return f.rank, nil
}

func (f *fakeGrok) ListModels(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.models, f.modelsErr
}

func (f *fakeGrok) ProbeModels(context.Context) grok.Probe { return f.probe }

type fakeTavily struct {
	mu       sync.Mutex
	results  []tavily.Result
	err      error
	asked    []int
	extract  string
	extErr   error
	mapRes   tavily.MapResult
	mapErr   error
	mapCalls []tavily.MapRequest
}

func (f *fakeTavily) Search(_ context.Context, _ string, n int) ([]tavily.Result, error) {
	f.mu.Lock()
	f.asked = append(f.asked, n)
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeTavily) Extract(context.Context, string) (string, error) { return f.extract, f.extErr }

func (f *fakeTavily) Map(_ context.Context, req tavily.MapRequest) (tavily.MapResult, error) {
	f.mapCalls = append(f.mapCalls, req)
	return f.mapRes, f.mapErr
}

type fakeFirecrawl struct {
	mu       sync.Mutex
	results  []firecrawl.Result
	err      error
	asked    []int
	scrape   string
	scrapeN  int
	scrapErr error
}

func (f *fakeFirecrawl) Search(_ context.Context, _ string, n int) ([]firecrawl.Result, error) {
	f.mu.Lock()
	f.asked = append(f.asked, n)
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeFirecrawl) Scrape(_ context.Context, _ string, attempts int) (string, error) {
	f.scrapeN = attempts
	return f.scrape, f.scrapErr
}

type fakeClients struct {
	mu        sync.Mutex
	grok      *fakeGrok
	tavily    *fakeTavily
	firecrawl *fakeFirecrawl
	models    []string
}

func (f *fakeClients) Grok(_ config.Settings, model string) GrokClient {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()
	return f.grok
}

func (f *fakeClients) Tavily(config.Settings) TavilyClient       { return f.tavily }
func (f *fakeClients) Firecrawl(config.Settings) FirecrawlClient { return f.firecrawl }

type fixture struct {
	svc     *Service
	cfg     *config.Store
	store   *conversation.Store
	cache   *sources.Cache
	clients *fakeClients
}

func baseConfig() map[string]interface{} {
	return map[string]interface{}{
		"api_url":            "https://grok.test/v1",
		"api_key":            "xai-test-key-1234",
		"model":              "grok-4-fast",
		"tavily_api_key":     "",
		"firecrawl_api_key":  "",
		"retry_max_attempts": 2,
	}
}

func newFixture(t *testing.T, cfgValues map[string]interface{}, opts ...Option) *fixture {
	t.Helper()
	for _, name := range []string{
		"GROK_API_URL", "GROK_API_KEY", "GROK_MODEL", "GROK_DEBUG", "GROK_LOG_LEVEL", "GROK_LOG_DIR",
		"GROK_RETRY_MAX_ATTEMPTS", "GROK_RETRY_MULTIPLIER", "GROK_RETRY_MAX_WAIT",
		"GROK_SESSION_TIMEOUT", "GROK_MAX_SESSIONS", "GROK_MAX_SEARCHES",
		"TAVILY_API_KEY", "TAVILY_API_URL", "FIRECRAWL_API_KEY", "FIRECRAWL_API_URL",
		"SOURCES_CACHE_SIZE", "SOURCES_REDIS_ADDR", "SOURCES_REDIS_TTL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	data, err := json.Marshal(cfgValues)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	logger := zaptest.NewLogger(t)
	cfg, err := config.NewStore(path, logger)
	require.NoError(t, err)

	clients := &fakeClients{grok: &fakeGrok{}, tavily: &fakeTavily{}, firecrawl: &fakeFirecrawl{}}
	store := conversation.NewStore(conversation.DefaultLimits(), logger)
	cache := sources.NewCache(16, nil, logger)

	var (
		mu sync.Mutex
		n  int
	)
	gen := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("handle-%d", n)
	}
	opts = append([]Option{WithHandleGenerator(gen)}, opts...)

	return &fixture{
		svc:     NewService(cfg, store, cache, clients, logger, opts...),
		cfg:     cfg,
		store:   store,
		cache:   cache,
		clients: clients,
	}
}

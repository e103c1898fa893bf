package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/firecrawl"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"github.com/Kocoro-lab/Shannon/go/research/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/research/internal/sources"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.uber.org/zap"
)

// Response is the result of one search execution. SessionID is set even when
// the search failed early, and then maps to an empty source list.
type Response struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	SourcesCount   int    `json:"sources_count"`
}

// Option customizes a Service
type Option func(*Service)

// WithSink routes operational messages to a log sink
func WithSink(sink logging.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithPageDoer sets the transport for direct page fetches
func WithPageDoer(doer executor.Doer) Option {
	return func(s *Service) { s.pages = doer }
}

// WithReflectionOptions passes options to every reflection controller
func WithReflectionOptions(opts ...reflection.Option) Option {
	return func(s *Service) { s.reflectOpts = append(s.reflectOpts, opts...) }
}

// WithHandleGenerator sets the generator for source handles
func WithHandleGenerator(gen func() string) Option {
	return func(s *Service) { s.newHandle = gen }
}

// Service implements the research operations on top of the conversation
// store, the source cache and the providers
type Service struct {
	cfg           *config.Store
	conversations *conversation.Store
	sources       *sources.Cache
	clients       Clients
	pages         executor.Doer
	models        *modelCache
	reflectOpts   []reflection.Option
	sink          logging.Sink
	newHandle     func() string
	logger        *zap.Logger
}

// NewService wires a service; options may replace the defaults
func NewService(cfg *config.Store, conversations *conversation.Store, cache *sources.Cache, clients Clients, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:           cfg,
		conversations: conversations,
		sources:       cache,
		clients:       clients,
		models:        newModelCache(logger),
		sink:          logging.NopSink{},
		newHandle:     util.NewShortID,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type searchParams struct {
	Query          string
	Platform       string
	Model          string
	ExtraSources   int
	History        []conversation.Message
	ConversationID string
}

// Search runs a new single-turn web search
func (s *Service) Search(ctx context.Context, query, platform, model string, extraSources int) (Response, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return Response{}, NewError(CodeInvalidRequest, "query must not be empty")
	}
	resp, err := s.executeSearch(ctx, searchParams{
		Query:        query,
		Platform:     platform,
		Model:        model,
		ExtraSources: extraSources,
	})
	recordSearch("search", start, resp, err)
	return resp, err
}

// Followup continues an existing conversation with its history
func (s *Service) Followup(ctx context.Context, query, conversationID string, extraSources int) (Response, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return Response{ConversationID: conversationID}, NewError(CodeInvalidRequest, "query must not be empty")
	}
	sess, ok := s.conversations.Get(conversationID)
	if !ok {
		err := NewError(CodeSessionExpired, "conversation expired or not found, start a new web search")
		recordSearch("followup", start, Response{}, err)
		return Response{ConversationID: conversationID}, err
	}
	resp, err := s.executeSearch(ctx, searchParams{
		Query:          query,
		ExtraSources:   extraSources,
		History:        sess.History(),
		ConversationID: conversationID,
	})
	recordSearch("followup", start, resp, err)
	return resp, err
}

// ReflectRequest parameters; zero values are used as given
type ReflectRequest struct {
	Query          string
	Context        string
	MaxReflections int
	CrossValidate  bool
	ExtraSources   int
}

// Reflect runs a reflection-enhanced search
func (s *Service) Reflect(ctx context.Context, req ReflectRequest) (*reflection.Result, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, NewError(CodeInvalidRequest, "query must not be empty")
	}
	settings := s.cfg.Current()
	if err := settings.Validate(); err != nil {
		return nil, NewError(CodeConfigError, "configuration error: "+err.Error())
	}

	ctrl := reflection.NewController(
		grokReviewer{client: s.clients.Grok(settings, settings.Model)},
		s.conversations,
		s.logger,
		s.reflectOpts...,
	)
	res, err := ctrl.Run(ctx, reflection.Request{
		Query:          req.Query,
		Context:        req.Context,
		MaxReflections: req.MaxReflections,
		CrossValidate:  req.CrossValidate,
		ExtraSources:   req.ExtraSources,
	}, s.reflectionSearch)

	status := "success"
	sourcesCount := 0
	switch {
	case errors.Is(err, reflection.ErrInitialSearchTimeout):
		status = "timeout"
		err = NewError(CodeTimeout, err.Error())
	case err != nil:
		status = "error"
	default:
		sourcesCount = res.SourcesCount
	}
	metrics.RecordSearch("reflect", status, time.Since(start).Seconds(), sourcesCount)
	return res, err
}

func (s *Service) reflectionSearch(ctx context.Context, query string, extra int, history []conversation.Message, conversationID string) (reflection.SearchResult, error) {
	resp, err := s.executeSearch(ctx, searchParams{
		Query:          query,
		ExtraSources:   extra,
		History:        history,
		ConversationID: conversationID,
	})
	if err != nil {
		return reflection.SearchResult{}, err
	}
	return reflection.SearchResult{
		Content:        resp.Content,
		SessionID:      resp.SessionID,
		ConversationID: resp.ConversationID,
		SourcesCount:   resp.SourcesCount,
	}, nil
}

// executeSearch runs Grok and the configured supplementary providers
// concurrently, splits and merges their sources, and records the turn.
// Provider failures degrade to empty results.
func (s *Service) executeSearch(ctx context.Context, p searchParams) (Response, error) {
	handle := s.newHandle()
	settings := s.cfg.Current()

	if err := settings.Validate(); err != nil {
		s.sources.Set(ctx, handle, []sources.Item{})
		return Response{SessionID: handle}, NewError(CodeConfigError, "configuration error: "+err.Error())
	}

	model := settings.Model
	if p.Model != "" {
		available := s.models.list(ctx, settings, s.clients.Grok(settings, settings.Model))
		if !accepts(available, p.Model) {
			s.sources.Set(ctx, handle, []sources.Item{})
			return Response{SessionID: handle}, NewError(CodeInvalidModel, "invalid model: "+p.Model)
		}
		model = p.Model
	}
	client := s.clients.Grok(settings, model)

	var sess *conversation.Session
	if p.ConversationID != "" {
		if existing, ok := s.conversations.Get(p.ConversationID); ok {
			sess = existing
		}
	}
	if sess == nil {
		sess = s.conversations.GetOrCreate("")
	}
	sess.AddUserMessage(p.Query)

	tavilyN, firecrawlN := allocateExtra(p.ExtraSources, settings.TavilyEnabled(), settings.FirecrawlEnabled())

	var (
		wg           sync.WaitGroup
		raw          string
		tavilyHits   []tavily.Result
		firecrawlHit []firecrawl.Result
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		text, err := client.Search(ctx, grok.SearchRequest{
			Query:    p.Query,
			Platform: p.Platform,
			History:  toChat(p.History),
		})
		if err != nil {
			s.logger.Warn("Grok search failed",
				zap.String("conversation_id", sess.ID()),
				zap.String("model", model),
				zap.Error(err),
			)
			s.sink.Record("grok search failed: "+err.Error(), false)
			return
		}
		raw = text
	}()

	if tavilyN > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := s.clients.Tavily(settings).Search(ctx, p.Query, tavilyN)
			metrics.RecordExtraProvider(tavily.Provider, "search", len(hits), err)
			if err != nil {
				s.logger.Warn("Tavily search failed", zap.Error(err))
				return
			}
			tavilyHits = hits
		}()
	}

	if firecrawlN > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := s.clients.Firecrawl(settings).Search(ctx, p.Query, firecrawlN)
			metrics.RecordExtraProvider(firecrawl.Provider, "search", len(hits), err)
			if err != nil {
				s.logger.Warn("Firecrawl search failed", zap.Error(err))
				return
			}
			firecrawlHit = hits
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.Debug("Search abandoned",
			zap.String("conversation_id", sess.ID()),
			zap.Error(err),
		)
		return Response{}, err
	}

	answer, cited := sources.Split(raw)
	merged := sources.Merge(cited, extraItems(tavilyHits, firecrawlHit))

	sess.AddAssistantMessage(answer)
	s.sources.Set(ctx, handle, merged)

	s.sink.Record("search finished: "+util.TruncateString(p.Query, 80, true), true)
	s.logger.Debug("Search finished",
		zap.String("session_id", handle),
		zap.String("conversation_id", sess.ID()),
		zap.Int("sources", len(merged)),
		zap.Int("tavily", len(tavilyHits)),
		zap.Int("firecrawl", len(firecrawlHit)),
	)

	return Response{
		SessionID:      handle,
		ConversationID: sess.ID(),
		Content:        answer,
		SourcesCount:   len(merged),
	}, nil
}

// allocateExtra splits n extra sources: half (rounded down) to Firecrawl and
// the rest to Tavily when both are configured, all to the only one otherwise
func allocateExtra(n int, hasTavily, hasFirecrawl bool) (tavilyN, firecrawlN int) {
	if n <= 0 {
		return 0, 0
	}
	switch {
	case hasTavily && hasFirecrawl:
		firecrawlN = n / 2
		return n - firecrawlN, firecrawlN
	case hasFirecrawl:
		return 0, n
	case hasTavily:
		return n, 0
	}
	return 0, 0
}

// extraItems converts supplementary hits, Firecrawl first, keeping the first
// occurrence of each URL and tagging the provider
func extraItems(tavilyHits []tavily.Result, firecrawlHits []firecrawl.Result) []sources.Item {
	items := make([]sources.Item, 0, len(tavilyHits)+len(firecrawlHits))
	for _, r := range firecrawlHits {
		items = append(items, sources.Item{
			URL:         r.URL,
			Title:       strings.TrimSpace(r.Title),
			Description: strings.TrimSpace(r.Description),
			Provider:    firecrawl.Provider,
		})
	}
	for _, r := range tavilyHits {
		items = append(items, sources.Item{
			URL:         r.URL,
			Title:       strings.TrimSpace(r.Title),
			Description: strings.TrimSpace(r.Content),
			Provider:    tavily.Provider,
		})
	}
	return sources.Merge(items)
}

func toChat(history []conversation.Message) []grok.ChatMessage {
	if len(history) == 0 {
		return nil
	}
	out := make([]grok.ChatMessage, len(history))
	for i, m := range history {
		out[i] = grok.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func recordSearch(kind string, start time.Time, resp Response, err error) {
	status := "success"
	if err != nil {
		status = "error"
		var se *Error
		if errors.As(err, &se) {
			status = se.Code
		}
	}
	metrics.RecordSearch(kind, status, time.Since(start).Seconds(), resp.SourcesCount)
}

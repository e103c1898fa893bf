package grok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/executor"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.uber.org/zap"
)

// Provider is the rate limiter and breaker key for Grok calls
const Provider = "grok"

const modelsTimeout = 10 * time.Second

// Config addresses one OpenAI-compatible endpoint
type Config struct {
	APIURL string
	APIKey string
	Model  string
	Retry  executor.Config
}

// Client talks to the conversational search provider. Completions go through
// the resilient executor; the /models probe is a single attempt.
type Client struct {
	cfg    Config
	doer   executor.Doer
	exec   *executor.Executor
	now    func() time.Time
	logger *zap.Logger
}

// NewClient builds a client. opts configure the executor (pacer, sleep, policy).
func NewClient(cfg Config, doer executor.Doer, logger *zap.Logger, opts ...executor.Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		cfg:    cfg,
		doer:   doer,
		exec:   executor.New(doer, cfg.Retry, logger.With(zap.String("provider", Provider)), opts...),
		now:    time.Now,
		logger: logger,
	}
}

// Model returns the model used for completions
func (c *Client) Model() string { return c.cfg.Model }

// SetClock replaces the time source used for time context
func (c *Client) SetClock(now func() time.Time) { c.now = now }

// Search runs one search completion and returns the raw model text
func (c *Client) Search(ctx context.Context, req SearchRequest) (string, error) {
	messages := c.searchMessages(req)
	c.logger.Debug("Grok search",
		zap.String("model", c.cfg.Model),
		zap.Int("history", len(req.History)),
		zap.Bool("skip_default_prompt", req.SkipDefaultPrompt),
		zap.String("platform", req.Platform),
	)
	return c.complete(ctx, messages)
}

func (c *Client) searchMessages(req SearchRequest) []ChatMessage {
	if req.SkipDefaultPrompt {
		messages := make([]ChatMessage, 0, len(req.History)+1)
		messages = append(messages, req.History...)
		return append(messages, ChatMessage{Role: "user", Content: req.Query})
	}

	var user strings.Builder
	if NeedsTimeContext(req.Query) {
		user.WriteString(TimeContext(c.now()))
		user.WriteString("\n")
	}
	user.WriteString(req.Query)
	if req.Platform != "" {
		user.WriteString(platformHintPrefix)
		user.WriteString(req.Platform)
		user.WriteString("\n")
	}

	messages := make([]ChatMessage, 0, len(req.History)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: searchPrompt})
	messages = append(messages, req.History...)
	return append(messages, ChatMessage{Role: "user", Content: user.String()})
}

// Describe asks the model to read url and summarize it
func (c *Client) Describe(ctx context.Context, url string) (Description, error) {
	text, err := c.complete(ctx, []ChatMessage{
		{Role: "system", Content: describePrompt},
		{Role: "user", Content: url},
	})
	if err != nil {
		return Description{}, err
	}
	return ParseDescription(text, url), nil
}

// Rank orders a numbered block of total sources by relevance to query.
// The result is a permutation of 1..total even when the reply is partial.
func (c *Client) Rank(ctx context.Context, query, block string, total int) ([]int, error) {
	text, err := c.complete(ctx, []ChatMessage{
		{Role: "system", Content: rankPrompt},
		{Role: "user", Content: fmt.Sprintf("Query: %s\n\n%s", query, block)},
	})
	if err != nil {
		return nil, err
	}
	return ParseRanking(text, total), nil
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	return c.exec.Stream(ctx, c.cfg.APIURL+"/chat/completions", c.authHeader(), body)
}

// ListModels returns the model ids served by the endpoint
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	var list ModelList
	if err := executor.SendJSON(ctx, c.doer, http.MethodGet, c.cfg.APIURL+"/models", c.authHeader(), nil, &list); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// ProbeModels tests connectivity through /models and never returns an error
func (c *Client) ProbeModels(ctx context.Context) Probe {
	start := time.Now()
	models, err := c.ListModels(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if err == nil {
		p := Probe{
			Status:         ProbeConnected,
			Message:        fmt.Sprintf("fetched model list (HTTP 200), %d models", len(models)),
			ResponseTimeMS: elapsed,
		}
		if len(models) > 0 {
			p.AvailableModels = models
		}
		return p
	}

	var se *executor.StatusError
	var ne *executor.NetworkError
	switch {
	case errors.As(err, &se):
		return Probe{
			Status:         ProbeUnexpectedStatus,
			Message:        fmt.Sprintf("HTTP %d: %s", se.Code, util.TruncateString(se.Body, 100, false)),
			ResponseTimeMS: elapsed,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return Probe{Status: ProbeTimeout, Message: "request timed out after 10s, check the network or API URL"}
	case errors.As(err, &ne):
		return Probe{Status: ProbeNetworkError, Message: ne.Error()}
	default:
		return Probe{Status: ProbeFailed, Message: err.Error()}
	}
}

func (c *Client) authHeader() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return h
}

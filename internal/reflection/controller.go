package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/research/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Hard ceilings. Requested values are only ever clamped downward.
const (
	MaxReflectionsHardLimit = 3
	SingleReflectionTimeout = 30 * time.Second
	SearchTimeout           = 60 * time.Second
	TotalTimeout            = 120 * time.Second
	HistoryTruncationChars  = 4000
	MaxExtraSources         = 10

	// minimum time left to start a supplementary search or a validation
	phaseSlack = 5 * time.Second
	// per-answer cap inside the validation prompt
	validationAnswerChars = 1500
)

// Consistency levels
const (
	ConsistencyHigh    = "high"
	ConsistencyMedium  = "medium"
	ConsistencyLow     = "low"
	ConsistencyUnknown = "unknown"
)

const (
	gapReflectionTimeout = "reflection timed out"
	conflictTimedOut     = "validation timed out"
	conflictFailed       = "validation failed"
)

// ErrInitialSearchTimeout aborts a run whose first search did not finish in time
var ErrInitialSearchTimeout = errors.New("initial search timed out")

// SearchResult is what one search execution produced
type SearchResult struct {
	Content        string
	SessionID      string
	ConversationID string
	SourcesCount   int
}

// SearchFunc executes one search. history is nil for the initial search;
// conversationID is empty when a new conversation should be started.
type SearchFunc func(ctx context.Context, query string, extraSources int, history []conversation.Message, conversationID string) (SearchResult, error)

// Reviewer sends a single system-prompted message to the provider without
// the default search prompt
type Reviewer interface {
	Review(ctx context.Context, systemPrompt, message string) (string, error)
}

// Conversations looks up live conversations
type Conversations interface {
	Get(id string) (*conversation.Session, bool)
}

// Request parameters for one run
type Request struct {
	Query          string
	Context        string
	MaxReflections int
	CrossValidate  bool
	ExtraSources   int
}

// Entry is one reflection round. A nil Gap means no further reflection was needed.
type Entry struct {
	Round              int     `json:"round"`
	Gap                *string `json:"gap"`
	SupplementaryQuery *string `json:"supplementary_query"`
}

// RoundSession records the source handle of every search in a run
type RoundSession struct {
	Round     int    `json:"round"`
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// ValidationResult is the cross-validation verdict
type ValidationResult struct {
	Consistency string   `json:"consistency"`
	Conflicts   []string `json:"conflicts"`
	Confidence  float64  `json:"confidence"`
}

// Result of a run
type Result struct {
	SessionID      string            `json:"session_id"`
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	ReflectionLog  []Entry           `json:"reflection_log"`
	RoundSessions  []RoundSession    `json:"round_sessions"`
	SourcesCount   int               `json:"sources_count"`
	SearchRounds   int               `json:"search_rounds"`
	Validation     *ValidationResult `json:"validation,omitempty"`
}

// Limits are the budgets applied by a Controller
type Limits struct {
	MaxReflections          int
	SingleReflectionTimeout time.Duration
	SearchTimeout           time.Duration
	TotalTimeout            time.Duration
	HistoryChars            int
	MaxExtraSources         int
}

// DefaultLimits returns the hard ceilings
func DefaultLimits() Limits {
	return Limits{
		MaxReflections:          MaxReflectionsHardLimit,
		SingleReflectionTimeout: SingleReflectionTimeout,
		SearchTimeout:           SearchTimeout,
		TotalTimeout:            TotalTimeout,
		HistoryChars:            HistoryTruncationChars,
		MaxExtraSources:         MaxExtraSources,
	}
}

// Option customizes a Controller
type Option func(*Controller)

// WithClock sets the time source for budgets
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLimits replaces the budgets
func WithLimits(l Limits) Option {
	return func(c *Controller) { c.limits = l }
}

// Controller runs an initial search, reflection rounds and optional
// cross-validation under nested time budgets. Only the initial search can fail
// a run; every later failure degrades the result.
type Controller struct {
	reviewer      Reviewer
	conversations Conversations
	limits        Limits
	now           func() time.Time
	logger        *zap.Logger
}

// NewController creates a controller
func NewController(reviewer Reviewer, conversations Conversations, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		reviewer:      reviewer,
		conversations: conversations,
		limits:        DefaultLimits(),
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one reflective search. A failed or timed out initial search is
// returned as an error; the search error is passed through unchanged.
func (c *Controller) Run(ctx context.Context, req Request, search SearchFunc) (res *Result, err error) {
	maxReflections := clamp(req.MaxReflections, c.limits.MaxReflections)
	extraSources := clamp(req.ExtraSources, c.limits.MaxExtraSources)
	budget := NewBudget(c.limits.TotalTimeout, c.now)

	ctx, runSpan := tracing.StartSpan(ctx, "reflection.run",
		attribute.Int("max_reflections", maxReflections),
		attribute.Int("extra_sources", extraSources),
	)
	defer func() {
		if res != nil {
			runSpan.SetAttributes(attribute.Int("search_rounds", res.SearchRounds))
		}
		tracing.End(runSpan, err)
	}()

	phaseCtx, span := tracing.StartSpan(ctx, "reflection.initial_search")
	initial, err := callWithTimeout(phaseCtx, c.limits.SearchTimeout, func(ctx context.Context) (SearchResult, error) {
		return search(ctx, req.Query, extraSources, nil, "")
	})
	tracing.End(span, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("Initial search timed out", zap.String("query", req.Query), zap.Duration("timeout", c.limits.SearchTimeout))
			return nil, fmt.Errorf("%w (%s)", ErrInitialSearchTimeout, c.limits.SearchTimeout)
		}
		return nil, err
	}

	res = &Result{
		SessionID:      initial.SessionID,
		ConversationID: initial.ConversationID,
		ReflectionLog:  []Entry{},
		RoundSessions:  []RoundSession{{Round: 0, Query: req.Query, SessionID: initial.SessionID}},
		SourcesCount:   initial.SourcesCount,
		SearchRounds:   1,
	}
	answers := []string{initial.Content}

	current := initial.Content
	if req.Context != "" {
		current = fmt.Sprintf("Background:\n%s\n\nSearch answer:\n%s", req.Context, initial.Content)
	}

	for i := 0; i < maxReflections; i++ {
		round := i + 1
		if budget.Expired() {
			metrics.ReflectionRounds.WithLabelValues("budget_exhausted").Inc()
			break
		}

		truncated := util.TruncateWithMarker(current, c.limits.HistoryChars)
		phaseCtx, span := tracing.StartSpan(ctx, "reflection.reflect", attribute.Int("round", round))
		entry, err := callWithTimeout(phaseCtx, budget.Bound(c.limits.SingleReflectionTimeout), func(ctx context.Context) (Entry, error) {
			return c.reflect(ctx, truncated, req.Query)
		})
		span.SetAttributes(attribute.Bool("gap_found", err == nil && entry.Gap != nil && entry.SupplementaryQuery != nil))
		tracing.End(span, err)
		if err != nil {
			gap := gapReflectionTimeout
			res.ReflectionLog = append(res.ReflectionLog, Entry{Round: round, Gap: &gap})
			metrics.ReflectionRounds.WithLabelValues("timeout").Inc()
			c.logger.Info("Reflection stopped", zap.Int("round", round), zap.Error(err))
			break
		}
		entry.Round = round
		if entry.Gap == nil || entry.SupplementaryQuery == nil {
			res.ReflectionLog = append(res.ReflectionLog, Entry{Round: round})
			metrics.ReflectionRounds.WithLabelValues("no_gap").Inc()
			break
		}
		res.ReflectionLog = append(res.ReflectionLog, entry)
		metrics.ReflectionRounds.WithLabelValues("gap").Inc()

		if budget.Remaining() < phaseSlack {
			break
		}

		query := *entry.SupplementaryQuery
		history := c.history(res.ConversationID)
		phaseCtx, span = tracing.StartSpan(ctx, "reflection.supplementary_search", attribute.Int("round", round))
		supp, err := callWithTimeout(phaseCtx, budget.Bound(c.limits.SearchTimeout), func(ctx context.Context) (SearchResult, error) {
			return search(ctx, query, extraSources, history, res.ConversationID)
		})
		tracing.End(span, err)
		if err != nil {
			metrics.ReflectionRounds.WithLabelValues("search_failed").Inc()
			c.logger.Info("Supplementary search failed",
				zap.Int("round", round),
				zap.String("query", query),
				zap.Error(err),
			)
			break
		}

		res.SourcesCount += supp.SourcesCount
		res.SearchRounds++
		answers = append(answers, supp.Content)
		res.RoundSessions = append(res.RoundSessions, RoundSession{Round: round, Query: query, SessionID: supp.SessionID})
		current = fmt.Sprintf("%s\n\nSupplementary search result:\n%s", current, supp.Content)
	}

	if req.CrossValidate && len(answers) > 1 && budget.Remaining() > phaseSlack {
		phaseCtx, span := tracing.StartSpan(ctx, "reflection.validate", attribute.Int("answers", len(answers)))
		v, verr := callWithTimeout(phaseCtx, budget.Bound(c.limits.SingleReflectionTimeout), func(ctx context.Context) (ValidationResult, error) {
			return c.validate(ctx, answers, req.Query), nil
		})
		if verr != nil {
			v = ValidationResult{Consistency: ConsistencyUnknown, Conflicts: []string{conflictTimedOut}}
		}
		span.SetAttributes(attribute.String("consistency", v.Consistency))
		tracing.End(span, verr)
		metrics.ValidationOutcomes.WithLabelValues(v.Consistency).Inc()
		res.Validation = &v
	}

	res.Content = compose(answers, res.ReflectionLog)
	c.logger.Info("Reflective search finished",
		zap.String("conversation_id", res.ConversationID),
		zap.Int("search_rounds", res.SearchRounds),
		zap.Int("sources", res.SourcesCount),
		zap.Duration("elapsed", budget.Elapsed()),
	)
	return res, nil
}

// reflect fails only when ctx ends; provider or parse failures mean no gap
func (c *Controller) reflect(ctx context.Context, answer, query string) (Entry, error) {
	msg := fmt.Sprintf("Original query: %s\n\nSearch answer:\n%s", query, answer)
	text, err := c.reviewer.Review(ctx, reflectSystemPrompt, msg)
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		c.logger.Debug("Reflection call failed", zap.Error(err))
		return Entry{}, nil
	}
	parsed := parseJSONSafe(text)
	return Entry{
		Gap:                optionalString(parsed, "gap"),
		SupplementaryQuery: optionalString(parsed, "supplementary_query"),
	}, nil
}

func (c *Controller) validate(ctx context.Context, answers []string, query string) ValidationResult {
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = fmt.Sprintf("[Search result %d]:\n%s", i+1, util.TruncateWithMarker(a, validationAnswerChars))
	}
	msg := fmt.Sprintf("Original query: %s\n\n%s", query, strings.Join(parts, "\n\n---\n"))

	text, err := c.reviewer.Review(ctx, validateSystemPrompt, msg)
	if err != nil {
		if ctx.Err() != nil {
			return ValidationResult{Consistency: ConsistencyUnknown, Conflicts: []string{conflictTimedOut}}
		}
		return ValidationResult{Consistency: ConsistencyUnknown, Conflicts: []string{conflictFailed}}
	}
	return parseValidation(parseJSONSafe(text))
}

func (c *Controller) history(conversationID string) []conversation.Message {
	if c.conversations == nil || conversationID == "" {
		return nil
	}
	sess, ok := c.conversations.Get(conversationID)
	if !ok {
		return nil
	}
	return sess.History()
}

// compose returns the initial answer untouched when there was no supplementary
// round; otherwise each supplement follows with its round number and gap.
func compose(answers []string, log []Entry) string {
	if len(answers) == 1 {
		return answers[0]
	}
	var b strings.Builder
	b.WriteString(answers[0])
	for i, ans := range answers[1:] {
		gap := ""
		if i < len(log) && log[i].Gap != nil {
			gap = *log[i].Gap
		}
		fmt.Fprintf(&b, "\n\n---\n**Supplement (Round %d)**: %s\n%s", i+1, gap, ans)
	}
	return b.String()
}

func clamp(v, ceiling int) int {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

// callWithTimeout runs fn under a deadline and abandons it when the deadline
// passes, even if fn ignores its context
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

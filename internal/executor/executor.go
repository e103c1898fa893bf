package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/research/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/research/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// Doer sends HTTP requests; *http.Client and *circuitbreaker.HTTPWrapper satisfy it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config bounds retries. MaxAttempts counts retries, so a request is tried
// at most MaxAttempts+1 times.
type Config struct {
	MaxAttempts int
	Multiplier  float64
	MaxWait     time.Duration
}

// DefaultConfig allows four tries with backoff capped at ten seconds
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Multiplier: 1, MaxWait: 10 * time.Second}
}

// Option customizes an Executor
type Option func(*Executor)

// WithPacer paces every attempt through p under the provider key
func WithPacer(p *ratecontrol.Pacer, provider string) Option {
	return func(e *Executor) {
		e.pacer = p
		e.provider = provider
	}
}

// WithSleep replaces the context-aware sleep between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithPolicy replaces the wait policy
func WithPolicy(p Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// Executor issues one logical streaming completion request with bounded retries
type Executor struct {
	doer     Doer
	cfg      Config
	policy   Policy
	pacer    *ratecontrol.Pacer
	provider string
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// New creates an executor
func New(doer Doer, cfg Config, logger *zap.Logger, opts ...Option) *Executor {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		doer:   doer,
		cfg:    cfg,
		policy: NewPolicy(cfg.Multiplier, cfg.MaxWait),
		sleep:  sleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stream POSTs body to url and returns the accumulated completion text.
// The last failure is returned once retries are exhausted.
func (e *Executor) Stream(ctx context.Context, url string, header http.Header, body []byte) (string, error) {
	tries := e.cfg.MaxAttempts + 1
	for attempt := 1; ; attempt++ {
		if err := e.pacer.Wait(ctx, e.provider); err != nil {
			return "", err
		}

		content, err := e.attempt(ctx, attempt, url, header, body)
		if err == nil {
			metrics.ExecutorAttempts.WithLabelValues("success").Inc()
			return content, nil
		}
		metrics.ExecutorAttempts.WithLabelValues("failure").Inc()

		if !IsRetryable(err) || attempt >= tries || ctx.Err() != nil {
			if attempt > 1 {
				e.logger.Warn("Provider request failed",
					zap.String("url", url),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
			}
			return "", err
		}

		wait := e.policy.Wait(attempt, err)
		metrics.RecordRetry(reason(err), wait.Seconds())
		e.logger.Info("Retrying provider request",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if serr := e.sleep(ctx, wait); serr != nil {
			return "", fmt.Errorf("%w (retry aborted: %v)", err, serr)
		}
	}
}

// attempt runs one try under its own span
func (e *Executor) attempt(ctx context.Context, n int, url string, header http.Header, body []byte) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "executor.attempt",
		attribute.Int("attempt", n),
		attribute.String("provider", e.provider),
		attribute.String("url", url),
	)
	content, err := e.once(ctx, url, header, body)
	if err != nil {
		span.SetAttributes(
			attribute.Bool("retryable", IsRetryable(err)),
			attribute.String("failure", reason(err)),
		)
	}
	tracing.End(span, err)
	return content, err
}

func (e *Executor) once(ctx context.Context, url string, header http.Header, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	tracing.InjectTraceparent(ctx, req)

	resp, err := e.doer.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}

	content, err := ReadStream(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ProtocolError{Err: err}
	}
	return content, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return err
	}
	return &NetworkError{Err: err}
}

func statusError(resp *http.Response) *StatusError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:       resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
		Body:       string(bytes.TrimSpace(snippet)),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

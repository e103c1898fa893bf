package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const httpService = "research"

// HTTPWrapper wraps an http.Client with a per-provider circuit breaker and records metrics
type HTTPWrapper struct {
	client   *http.Client
	cb       *CircuitBreaker
	provider string
	logger   *zap.Logger
}

// NewHTTPWrapper creates the breaker-guarded client for one upstream provider.
// A nil client gets a client without a timeout; callers bound requests via context.
func NewHTTPWrapper(client *http.Client, provider string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(provider, GetProviderConfig(provider).ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(provider, httpService, cb)
	return &HTTPWrapper{client: client, cb: cb, provider: provider, logger: logger}
}

// Do executes an HTTP request through the circuit breaker. 5xx responses count as
// breaker failures but are still returned to the caller with a nil error.
// When the breaker rejects the call the error is ErrCircuitBreakerOpen or ErrTooManyRequests.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var err2 error
		resp, err2 = hw.client.Do(req)
		if err2 != nil {
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(hw.provider, httpService, hw.cb.State(), err == nil)

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// Breaker exposes the underlying breaker for health reporting
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

// httpStatusError marks 5xx responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }

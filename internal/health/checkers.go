package health

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
)

// ConfigChecker reports whether the provider credentials are usable.
// Searches cannot run without them, so it is critical.
type ConfigChecker struct {
	store *config.Store
}

// NewConfigChecker creates a configuration checker
func NewConfigChecker(store *config.Store) *ConfigChecker {
	return &ConfigChecker{store: store}
}

func (c *ConfigChecker) Name() string           { return "config" }
func (c *ConfigChecker) IsCritical() bool       { return true }
func (c *ConfigChecker) Timeout() time.Duration { return time.Second }

func (c *ConfigChecker) Check(ctx context.Context) CheckResult {
	settings := c.store.Current()
	result := CheckResult{
		Details: map[string]interface{}{
			"config_file":       c.store.Path(),
			"model":             settings.Model,
			"tavily_enabled":    settings.TavilyEnabled(),
			"firecrawl_enabled": settings.FirecrawlEnabled(),
		},
	}
	if err := settings.Validate(); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Provider credentials missing"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "Configuration complete"
	return result
}

// ProbeFunc probes the provider's model listing endpoint
type ProbeFunc func(ctx context.Context) grok.Probe

// ProviderChecker probes the Grok endpoint. Outages degrade answers but the
// supplementary providers still serve, so it is not critical.
type ProviderChecker struct {
	probe   ProbeFunc
	timeout time.Duration
}

// NewProviderChecker creates a provider checker
func NewProviderChecker(probe ProbeFunc) *ProviderChecker {
	return &ProviderChecker{probe: probe, timeout: 12 * time.Second}
}

func (p *ProviderChecker) Name() string           { return "grok_api" }
func (p *ProviderChecker) IsCritical() bool       { return false }
func (p *ProviderChecker) Timeout() time.Duration { return p.timeout }

func (p *ProviderChecker) Check(ctx context.Context) CheckResult {
	probe := p.probe(ctx)
	result := CheckResult{
		Message: probe.Message,
		Details: map[string]interface{}{
			"probe_status":     probe.Status,
			"response_time_ms": probe.ResponseTimeMS,
			"models":           len(probe.AvailableModels),
		},
	}
	switch probe.Status {
	case grok.ProbeConnected:
		result.Status = StatusHealthy
		if probe.ResponseTimeMS > 3000 {
			result.Status = StatusDegraded
			result.Message = "Provider responding slowly"
		}
	case grok.ProbeUnexpectedStatus:
		result.Status = StatusDegraded
		result.Error = probe.Message
	default:
		result.Status = StatusUnhealthy
		result.Error = probe.Message
	}
	return result
}

// Pinger is a store that can be pinged
type Pinger interface {
	Ping(ctx context.Context) error
}

// SourceMirrorChecker checks the shared Redis source mirror. The in-process
// cache keeps serving without it.
type SourceMirrorChecker struct {
	mirror  Pinger
	wrapper *circuitbreaker.RedisWrapper
	timeout time.Duration
}

// NewSourceMirrorChecker creates a mirror checker; wrapper may be nil
func NewSourceMirrorChecker(mirror Pinger, wrapper *circuitbreaker.RedisWrapper) *SourceMirrorChecker {
	return &SourceMirrorChecker{mirror: mirror, wrapper: wrapper, timeout: 5 * time.Second}
}

func (r *SourceMirrorChecker) Name() string           { return "source_mirror" }
func (r *SourceMirrorChecker) IsCritical() bool       { return false }
func (r *SourceMirrorChecker) Timeout() time.Duration { return r.timeout }

func (r *SourceMirrorChecker) Check(ctx context.Context) CheckResult {
	var result CheckResult

	if r.wrapper != nil && r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		return result
	}

	start := time.Now()
	err := r.mirror.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		result.Details = map[string]interface{}{"latency_ms": latency.Milliseconds()}
		return result
	}

	if latency > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": latency.Milliseconds()}
	return result
}

// StateSource lists breaker states keyed by service:name
type StateSource interface {
	States() map[string]circuitbreaker.State
}

// BreakerChecker reports open circuit breakers as degraded
type BreakerChecker struct {
	source StateSource
}

// NewBreakerChecker creates a breaker checker; nil uses the global collector
func NewBreakerChecker(source StateSource) *BreakerChecker {
	if source == nil {
		source = circuitbreaker.GlobalMetricsCollector
	}
	return &BreakerChecker{source: source}
}

func (b *BreakerChecker) Name() string           { return "circuit_breakers" }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(ctx context.Context) CheckResult {
	states := b.source.States()
	details := make(map[string]interface{}, len(states))
	var open []string
	for key, state := range states {
		details[key] = state.String()
		if state == circuitbreaker.StateOpen {
			open = append(open, key)
		}
	}
	sort.Strings(open)

	if len(open) > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "Circuit breakers open",
			Error:   strings.Join(open, ", "),
			Details: details,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "All circuit breakers closed", Details: details}
}

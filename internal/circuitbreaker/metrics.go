package circuitbreaker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shannon_research_breaker_state",
			Help: "Breaker state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	breakerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_breaker_calls_total",
			Help: "Upstream calls passed through a breaker, by state and result",
		},
		[]string{"name", "service", "state", "result"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_breaker_transitions_total",
			Help: "Breaker state transitions per upstream",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)

	breakerOpenedAt = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shannon_research_breaker_opened_at_seconds",
			Help: "Unix time the breaker last opened, 0 while closed or half-open",
		},
		[]string{"name", "service"},
	)
)

// GlobalMetricsCollector tracks every breaker built by the HTTP and Redis wrappers
var GlobalMetricsCollector = NewMetricsCollector()

// MetricsCollector exports breaker state and reports it to the health checker.
// Breakers are keyed "service:name", e.g. "research:grok" or "sources:redis".
type MetricsCollector struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewMetricsCollector returns an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[string]*CircuitBreaker)}
}

// RegisterCircuitBreaker tracks cb and chains a transition hook that feeds the gauges
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mutex.Lock()
	mc.breakers[service+":"+name] = cb
	mc.mutex.Unlock()

	next := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from State, to State) {
		if next != nil {
			next(cbName, from, to)
		}
		breakerTransitions.WithLabelValues(name, service, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name, service).Set(float64(to))
		switch {
		case to == StateOpen:
			breakerOpenedAt.WithLabelValues(name, service).SetToCurrentTime()
		case from == StateOpen:
			breakerOpenedAt.WithLabelValues(name, service).Set(0)
		}
	}
}

// RecordRequest counts one upstream call
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerCalls.WithLabelValues(name, service, state.String(), result).Inc()
}

// UpdateMetrics refreshes the state gauge of every tracked breaker. Reading
// the state also moves expired open breakers to half-open.
func (mc *MetricsCollector) UpdateMetrics() {
	for key, state := range mc.States() {
		service, name, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		breakerState.WithLabelValues(name, service).Set(float64(state))
	}
}

// States returns the current state of every tracked breaker keyed by service:name
func (mc *MetricsCollector) States() map[string]State {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	out := make(map[string]State, len(mc.breakers))
	for key, cb := range mc.breakers {
		out[key] = cb.State()
	}
	return out
}

// StartMetricsCollection refreshes the state gauges every 10s until ctx is done
func StartMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GlobalMetricsCollector.UpdateMetrics()
			}
		}
	}()
}

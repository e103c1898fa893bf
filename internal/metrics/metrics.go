package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Search metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_searches_total",
			Help: "Total number of search operations",
		},
		[]string{"kind", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shannon_research_search_duration_seconds",
			Help:    "Search operation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	SourcesPerSearch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shannon_research_sources_per_search",
			Help:    "Number of merged sources returned per search",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		},
	)

	// Executor metrics
	ExecutorAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_executor_attempts_total",
			Help: "Total number of HTTP attempts made by the resilient executor",
		},
		[]string{"result"},
	)

	ExecutorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_executor_retries_total",
			Help: "Total number of retries scheduled, by failure reason",
		},
		[]string{"reason"},
	)

	ExecutorRetryWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shannon_research_executor_retry_wait_seconds",
			Help:    "Computed wait before a retry in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Reflection metrics
	ReflectionRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_reflection_rounds_total",
			Help: "Reflection rounds by outcome",
		},
		[]string{"outcome"},
	)

	ValidationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_validation_total",
			Help: "Cross-validation results by consistency level",
		},
		[]string{"consistency"},
	)

	// Conversation metrics
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shannon_research_conversations_created_total",
			Help: "Total number of conversations created",
		},
	)

	ConversationsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_conversations_evicted_total",
			Help: "Conversations removed from the store, by reason",
		},
		[]string{"reason"},
	)

	ConversationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shannon_research_conversations_active",
			Help: "Number of live conversations held in memory",
		},
	)

	// Source cache metrics
	SourceCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shannon_research_source_cache_size",
			Help: "Number of source lists held in the in-process cache",
		},
	)

	SourceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_source_cache_lookups_total",
			Help: "Source cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	SourceCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shannon_research_source_cache_evictions_total",
			Help: "Total number of source lists evicted by capacity",
		},
	)

	// Supplementary provider metrics
	ExtraProviderResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_extra_provider_results_total",
			Help: "Results returned by supplementary content providers",
		},
		[]string{"provider"},
	)

	ExtraProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shannon_research_extra_provider_errors_total",
			Help: "Supplementary provider calls that degraded to no results",
		},
		[]string{"provider", "operation"},
	)

	// Logging
	LogRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shannon_research_log_records_dropped_total",
			Help: "Log sink records dropped because the buffer was full",
		},
	)
)

// RecordSearch records metrics for a finished search operation
func RecordSearch(kind, status string, durationSeconds float64, sourcesCount int) {
	SearchesTotal.WithLabelValues(kind, status).Inc()
	SearchDuration.WithLabelValues(kind).Observe(durationSeconds)
	if status == "success" {
		SourcesPerSearch.Observe(float64(sourcesCount))
	}
}

// RecordRetry records a scheduled retry and its wait
func RecordRetry(reason string, waitSeconds float64) {
	ExecutorRetries.WithLabelValues(reason).Inc()
	ExecutorRetryWait.Observe(waitSeconds)
}

// RecordExtraProvider records the outcome of a supplementary provider call
func RecordExtraProvider(provider, operation string, results int, err error) {
	if err != nil {
		ExtraProviderErrors.WithLabelValues(provider, operation).Inc()
		return
	}
	if results > 0 {
		ExtraProviderResults.WithLabelValues(provider).Add(float64(results))
	}
}

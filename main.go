package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/health"
	"github.com/Kocoro-lab/Shannon/go/research/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/research/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/firecrawl"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/tavily"
	"github.com/Kocoro-lab/Shannon/go/research/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/research/internal/search"
	"github.com/Kocoro-lab/Shannon/go/research/internal/sources"
	"github.com/Kocoro-lab/Shannon/go/research/internal/tracing"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config.LoadDotEnv(zap.NewNop())
	configPath := config.DefaultPath()

	// Resolve once without a logger so the logger itself can be configured
	bootstrap, _ := config.Load(configPath, nil)
	logger := logging.New(logging.Options{
		Level: bootstrap.LogLevel,
		Dir:   bootstrap.LogPath(),
		Debug: bootstrap.Debug,
	})
	defer logger.Sync()

	store, err := config.NewStore(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	settings := store.Current()
	if err := settings.Validate(); err != nil {
		logger.Warn("Provider not configured; searches will fail until config is fixed",
			zap.String("config_file", configPath),
			zap.Error(err),
		)
	}

	watcher, err := config.NewWatcher(store, logger)
	if err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
		watcher = nil
	}
	store.OnChange(func(prev, next config.Settings) {
		logger.Info("Configuration reloaded",
			zap.String("model", next.Model),
			zap.Bool("model_changed", prev.Model != next.Model),
			zap.Bool("credentials_changed", prev.APIURL != next.APIURL || prev.APIKey != next.APIKey),
		)
	})

	shutdownTracing, err := tracing.Initialize(tracing.ConfigFromEnv(), logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}

	sink := logging.NewAsyncSink(logger, 256, func() bool { return store.Current().Debug })

	circuitbreaker.StartMetricsCollection(ctx)

	limits, err := ratecontrol.LoadLimits(os.Getenv("PROVIDER_LIMITS_PATH"))
	if err != nil {
		logger.Warn("Using default provider rate limits", zap.Error(err))
	}
	pacer := ratecontrol.NewPacer(limits, logger)

	clients := &search.ProviderClients{
		GrokDoer:      circuitbreaker.NewHTTPWrapper(nil, grok.Provider, logger),
		TavilyDoer:    circuitbreaker.NewHTTPWrapper(nil, tavily.Provider, logger),
		FirecrawlDoer: circuitbreaker.NewHTTPWrapper(nil, firecrawl.Provider, logger),
		Pacer:         pacer,
		Logger:        logger,
	}
	pages := circuitbreaker.NewHTTPWrapper(nil, "web", logger)

	hm := health.NewManager(logger)

	var (
		mirror      sources.Mirror
		redisClient *redis.Client
	)
	if addr := settings.SourcesRedisAddr; addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		rw := circuitbreaker.NewRedisWrapper(redisClient, "sources", logger)
		rm := sources.NewRedisMirror(rw, settings.SourcesRedisTTL)
		mirror = rm
		_ = hm.RegisterChecker(health.NewSourceMirrorChecker(rm, rw))
		logger.Info("Source mirror enabled", zap.String("addr", addr), zap.Duration("ttl", settings.SourcesRedisTTL))
	}
	cache := sources.NewCache(settings.SourcesCacheSize, mirror, logger)

	conversations := conversation.NewStore(conversation.Limits{
		MaxSessions:    settings.MaxSessions,
		SessionTimeout: settings.SessionTimeout,
		MaxTurns:       settings.MaxSearches,
	}, logger)

	svc := search.NewService(store, conversations, cache, clients, logger,
		search.WithSink(sink),
		search.WithPageDoer(pages),
	)

	_ = hm.RegisterChecker(health.NewConfigChecker(store))
	_ = hm.RegisterChecker(health.NewProviderChecker(func(ctx context.Context) grok.Probe {
		return svc.ConfigInfo(ctx).ConnectionTest
	}))
	_ = hm.RegisterChecker(health.NewBreakerChecker(nil))
	_ = hm.Start(ctx)
	healthServer := health.StartHealthServer(hm, getEnvOrDefaultInt("HEALTH_PORT", 8081), logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(getEnvOrDefaultInt("METRICS_PORT", 2112)),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	apiMux := http.NewServeMux()
	httpapi.NewResearchHandler(svc, logger).RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:              ":" + strconv.Itoa(getEnvOrDefaultInt("HTTP_PORT", 8090)),
		Handler:           httpapi.WithRequestLogging(apiMux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// reflective searches run up to two minutes
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Research API listening",
			zap.String("address", apiServer.Addr),
			zap.String("model", settings.Model),
			zap.Bool("tavily_enabled", settings.TavilyEnabled()),
			zap.Bool("firecrawl_enabled", settings.FirecrawlEnabled()),
		)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Research API failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down research service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	for name, srv := range map[string]*http.Server{"api": apiServer, "health": healthServer, "metrics": metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.String("server", name), zap.Error(err))
		}
	}
	_ = hm.Stop()
	if watcher != nil {
		_ = watcher.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
	cancel()
	sink.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

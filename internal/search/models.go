package search

import (
	"context"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	modelsTTL       = 10 * time.Minute
	failedModelsTTL = time.Minute
)

// modelCache remembers /models per endpoint and key. Failed or empty lookups
// are cached briefly as an empty list, which accepts any model.
type modelCache struct {
	c      *cache.Cache
	logger *zap.Logger
}

func newModelCache(logger *zap.Logger) *modelCache {
	return &modelCache{c: cache.New(modelsTTL, 2*modelsTTL), logger: logger}
}

func (m *modelCache) list(ctx context.Context, s config.Settings, client GrokClient) []string {
	key := s.APIURL + "\x00" + s.APIKey
	if v, ok := m.c.Get(key); ok {
		return v.([]string)
	}

	models, err := client.ListModels(ctx)
	ttl := cache.DefaultExpiration
	if err != nil || len(models) == 0 {
		if err != nil {
			m.logger.Warn("Failed to list models", zap.String("api_url", s.APIURL), zap.Error(err))
		}
		models = []string{}
		ttl = failedModelsTTL
	}
	m.c.Set(key, models, ttl)
	return models
}

// accepts reports whether model may be used; an unknown list accepts anything
func accepts(models []string, model string) bool {
	return len(models) == 0 || util.ContainsString(models, model)
}

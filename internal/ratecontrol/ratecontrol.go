package ratecontrol

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type config struct {
	RateLimits struct {
		DefaultRPM        int `yaml:"default_rpm"`
		DefaultBurst      int `yaml:"default_burst"`
		ProviderOverrides map[string]struct {
			RPM   int `yaml:"rpm"`
			Burst int `yaml:"burst"`
		} `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

// RateLimit is a requests-per-minute ceiling with a burst allowance. RPM <= 0 means unlimited.
type RateLimit struct {
	RPM   int
	Burst int
}

// Limits resolves the RateLimit for each provider
type Limits struct {
	def       RateLimit
	overrides map[string]RateLimit
}

var builtInProviderLimits = map[string]RateLimit{
	"grok":      {RPM: 60, Burst: 4},
	"tavily":    {RPM: 100, Burst: 5},
	"firecrawl": {RPM: 50, Burst: 3},
}

// DefaultLimits returns the built-in provider limits
func DefaultLimits() Limits {
	return Limits{overrides: map[string]RateLimit{}}
}

// LoadLimits reads a YAML limits file. An empty path yields DefaultLimits.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return limits, fmt.Errorf("read rate limit config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return limits, fmt.Errorf("unmarshal rate limit config: %w", err)
	}
	limits.def = RateLimit{RPM: cfg.RateLimits.DefaultRPM, Burst: cfg.RateLimits.DefaultBurst}
	for name, o := range cfg.RateLimits.ProviderOverrides {
		limits.overrides[normalize(name)] = RateLimit{RPM: o.RPM, Burst: o.Burst}
	}
	return limits, nil
}

// LimitForProvider returns the override, then the built-in limit, then the file default
func (l Limits) LimitForProvider(provider string) RateLimit {
	key := normalize(provider)
	if o, ok := l.overrides[key]; ok {
		return o
	}
	if limit, ok := builtInProviderLimits[key]; ok {
		return limit
	}
	return l.def
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Pacer spaces out outbound requests per provider. A nil *Pacer never waits.
type Pacer struct {
	limits Limits
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer creates a pacer backed by limits
func NewPacer(limits Limits, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{limits: limits, logger: logger, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until provider may issue another request or ctx is done
func (p *Pacer) Wait(ctx context.Context, provider string) error {
	if p == nil {
		return nil
	}
	lim := p.limiter(provider)
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", provider, err)
	}
	return nil
}

func (p *Pacer) limiter(provider string) *rate.Limiter {
	key := normalize(provider)

	p.mu.Lock()
	defer p.mu.Unlock()
	if lim, ok := p.limiters[key]; ok {
		return lim
	}

	limit := p.limits.LimitForProvider(key)
	var lim *rate.Limiter
	if limit.RPM > 0 {
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(float64(limit.RPM)/60.0), burst)
		p.logger.Debug("Created provider limiter",
			zap.String("provider", key),
			zap.Int("rpm", limit.RPM),
			zap.Int("burst", burst),
		)
	}
	p.limiters[key] = lim
	return lim
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/sources"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newConfigStore(t *testing.T, values map[string]interface{}) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	data, err := json.Marshal(values)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	store, err := config.NewStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func TestConfigChecker(t *testing.T) {
	ok := NewConfigChecker(newConfigStore(t, map[string]interface{}{
		"api_url": "https://grok.test/v1",
		"api_key": "xai-key",
	}))
	assert.True(t, ok.IsCritical())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	missing := NewConfigChecker(newConfigStore(t, map[string]interface{}{
		"api_url": "",
		"api_key": "",
	}))
	result := missing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestProviderChecker(t *testing.T) {
	tests := []struct {
		probe grok.Probe
		want  CheckStatus
	}{
		{grok.Probe{Status: grok.ProbeConnected, ResponseTimeMS: 120}, StatusHealthy},
		{grok.Probe{Status: grok.ProbeConnected, ResponseTimeMS: 4500}, StatusDegraded},
		{grok.Probe{Status: grok.ProbeUnexpectedStatus, Message: "HTTP 500"}, StatusDegraded},
		{grok.Probe{Status: grok.ProbeTimeout, Message: "timed out"}, StatusUnhealthy},
		{grok.Probe{Status: grok.ProbeConfigError}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.probe.Status, func(t *testing.T) {
			probe := tt.probe
			c := NewProviderChecker(func(context.Context) grok.Probe { return probe })
			assert.False(t, c.IsCritical())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestSourceMirrorChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rw := circuitbreaker.NewRedisWrapper(client, "health-test", zaptest.NewLogger(t))
	mirror := sources.NewRedisMirror(rw, time.Minute)

	c := NewSourceMirrorChecker(mirror, rw)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	failing := NewSourceMirrorChecker(failingPinger{}, nil)
	result := failing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "connection refused", result.Error)
}

type fixedStates map[string]circuitbreaker.State

func (f fixedStates) States() map[string]circuitbreaker.State { return f }

func TestBreakerChecker(t *testing.T) {
	closed := NewBreakerChecker(fixedStates{"http:grok": circuitbreaker.StateClosed})
	assert.Equal(t, StatusHealthy, closed.Check(context.Background()).Status)

	open := NewBreakerChecker(fixedStates{
		"http:grok":   circuitbreaker.StateOpen,
		"http:tavily": circuitbreaker.StateHalfOpen,
		"redis:cache": circuitbreaker.StateOpen,
	})
	result := open.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "http:grok, redis:cache", result.Error)
	assert.Equal(t, "half-open", result.Details["http:tavily"])
}

package ratecontrol

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLimitForProvider(t *testing.T) {
	limits := DefaultLimits()
	assert.Equal(t, RateLimit{RPM: 60, Burst: 4}, limits.LimitForProvider("Grok"))
	assert.Equal(t, RateLimit{}, limits.LimitForProvider("unknown"))
}

func TestLoadLimitsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	body := `
rate_limits:
  default_rpm: 10
  provider_overrides:
    tavily:
      rpm: 5
      burst: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	limits, err := LoadLimits(path)
	require.NoError(t, err)
	assert.Equal(t, RateLimit{RPM: 5, Burst: 2}, limits.LimitForProvider("tavily"))
	assert.Equal(t, RateLimit{RPM: 60, Burst: 4}, limits.LimitForProvider("grok"))
	assert.Equal(t, RateLimit{RPM: 10}, limits.LimitForProvider("other"))
}

func TestLoadLimitsMissingFile(t *testing.T) {
	_, err := LoadLimits(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNilPacerNeverWaits(t *testing.T) {
	var p *Pacer
	assert.NoError(t, p.Wait(context.Background(), "grok"))
}

func TestPacerHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limits:\n  provider_overrides:\n    slow:\n      rpm: 1\n      burst: 1\n"), 0o644))
	limits, err := LoadLimits(path)
	require.NoError(t, err)

	p := NewPacer(limits, zaptest.NewLogger(t))
	require.NoError(t, p.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx, "slow"))

	assert.NoError(t, p.Wait(context.Background(), "unlimited"))
}

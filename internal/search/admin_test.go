package search

import (
	"context"
	"testing"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConfigInfoProbesProvider(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.clients.grok.probe = grok.Probe{Status: grok.ProbeConnected, Message: "ok", AvailableModels: []string{"grok-4-fast"}}

	info := f.svc.ConfigInfo(context.Background())
	assert.Equal(t, "configured", info.ConfigStatus)
	assert.Equal(t, "https://grok.test/v1", info.APIURL)
	assert.NotEqual(t, "xai-test-key-1234", info.APIKey)
	assert.Equal(t, grok.ProbeConnected, info.ConnectionTest.Status)
	assert.Equal(t, []string{"grok-4-fast"}, info.ConnectionTest.AvailableModels)
}

func TestConfigInfoWithoutCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg["api_url"] = ""
	f := newFixture(t, cfg)

	info := f.svc.ConfigInfo(context.Background())
	assert.Equal(t, "not configured", info.APIURL)
	assert.Contains(t, info.ConfigStatus, "configuration error")
	assert.Equal(t, grok.ProbeConfigError, info.ConnectionTest.Status)
	assert.Empty(t, f.clients.models)
}

func TestSwitchModelPersists(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.clients.grok.models = []string{"grok-4-fast", "grok-4"}

	change, err := f.svc.SwitchModel(context.Background(), " grok-4 ")
	require.NoError(t, err)
	assert.Equal(t, "grok-4-fast", change.Previous)
	assert.Equal(t, "grok-4", change.Current)
	assert.Equal(t, f.cfg.Path(), change.ConfigFile)
	assert.Equal(t, "grok-4", f.cfg.Current().Model)

	reloaded, err := config.Load(f.cfg.Path(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "grok-4", reloaded.Model)
	assert.Equal(t, "xai-test-key-1234", reloaded.APIKey)
}

func TestSwitchModelRejectsUnknown(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.clients.grok.models = []string{"grok-4-fast"}

	_, err := f.svc.SwitchModel(context.Background(), "grok-99")
	requireCode(t, err, CodeInvalidModel)
	assert.Equal(t, "grok-4-fast", f.cfg.Current().Model)

	_, err = f.svc.SwitchModel(context.Background(), "  ")
	requireCode(t, err, CodeInvalidRequest)
}

func TestSwitchModelWithoutCredentialsSkipsValidation(t *testing.T) {
	cfg := baseConfig()
	cfg["api_key"] = ""
	f := newFixture(t, cfg)

	change, err := f.svc.SwitchModel(context.Background(), "grok-custom")
	require.NoError(t, err)
	assert.Equal(t, "grok-custom", change.Current)
	assert.Equal(t, 0, f.clients.grok.listCalls)
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type staticChecker struct {
	name     string
	critical bool
	status   CheckStatus
}

func (s staticChecker) Name() string           { return s.name }
func (s staticChecker) IsCritical() bool       { return s.critical }
func (s staticChecker) Timeout() time.Duration { return time.Second }
func (s staticChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: s.status}
}

func TestRegisterCheckerRejectsDuplicates(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(staticChecker{name: "a"}))
	assert.Error(t, m.RegisterChecker(staticChecker{name: "a"}))
	assert.Error(t, m.RegisterChecker(staticChecker{name: ""}))
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []staticChecker
		want      CheckStatus
		wantReady bool
	}{
		{"none", nil, StatusUnknown, false},
		{"all healthy", []staticChecker{{name: "a", status: StatusHealthy}, {name: "b", status: StatusHealthy}}, StatusHealthy, true},
		{"critical failing", []staticChecker{{name: "a", critical: true, status: StatusUnhealthy}, {name: "b", status: StatusHealthy}}, StatusUnhealthy, false},
		{"non-critical failing", []staticChecker{{name: "a", status: StatusUnhealthy}, {name: "b", critical: true, status: StatusHealthy}}, StatusDegraded, true},
		{"degraded", []staticChecker{{name: "a", critical: true, status: StatusDegraded}}, StatusDegraded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(zaptest.NewLogger(t))
			for _, c := range tt.checkers {
				require.NoError(t, m.RegisterChecker(c))
			}
			overall := m.GetOverallHealth(context.Background())
			assert.Equal(t, tt.want, overall.Status)
			assert.Equal(t, tt.wantReady, overall.Ready)
			assert.True(t, m.IsLive(context.Background()))
		})
	}
}

func TestCheckConfigOverrides(t *testing.T) {
	m := NewManagerWithConfig(&HealthConfiguration{
		Checks: map[string]CheckConfig{
			"off":     {Enabled: false},
			"relaxed": {Enabled: true, Critical: false},
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(staticChecker{name: "off", critical: true, status: StatusUnhealthy}))
	require.NoError(t, m.RegisterChecker(staticChecker{name: "relaxed", critical: true, status: StatusUnhealthy}))

	detailed := m.GetDetailedHealth(context.Background())
	assert.Equal(t, 1, detailed.Summary.Total)
	assert.NotContains(t, detailed.Components, "off")
	assert.False(t, detailed.Components["relaxed"].Critical)
	assert.Equal(t, StatusDegraded, detailed.Overall.Status)
}

func TestDetailedHealthStoresLastResults(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(staticChecker{name: "a", status: StatusHealthy}))

	assert.Empty(t, m.GetLastResults())
	m.GetDetailedHealth(context.Background())
	last := m.GetLastResults()
	require.Contains(t, last, "a")
	assert.Equal(t, "a", last["a"].Component)
}

func TestHTTPEndpoints(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(staticChecker{name: "config", critical: true, status: StatusUnhealthy}))

	mux := http.NewServeMux()
	NewHTTPHandler(m, zaptest.NewLogger(t)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	get := func(path string) (int, map[string]interface{}) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])

	code, body = get("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["ready"])

	code, _ = get("/health/live")
	assert.Equal(t, http.StatusOK, code)

	code, body = get("/health/detailed?cached=true")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	components := body["components"].(map[string]interface{})
	config := components["config"].(map[string]interface{})
	assert.Equal(t, "unhealthy", config["status"])

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBackgroundChecksRespectContext(t *testing.T) {
	m := NewManagerWithConfig(&HealthConfiguration{CheckInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, m.RegisterChecker(staticChecker{name: "a", status: StatusHealthy}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	assert.Eventually(t, func() bool {
		_, ok := m.GetLastResults()["a"]
		return ok
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

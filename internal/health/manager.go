package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckerState represents the runtime state of a health checker
type CheckerState struct {
	checker   Checker
	enabled   bool
	interval  time.Duration
	timeout   time.Duration
	critical  bool
	lastCheck time.Time
}

// Manager runs registered checkers on demand and in the background
type Manager struct {
	checkers      map[string]*CheckerState
	lastResults   map[string]CheckResult
	config        *HealthConfiguration
	started       bool
	checkInterval time.Duration
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// HealthConfiguration contains health check configuration
type HealthConfiguration struct {
	CheckInterval time.Duration
	Checks        map[string]CheckConfig
}

// CheckConfig overrides the defaults of one checker
type CheckConfig struct {
	Enabled  bool
	Critical bool
	Timeout  time.Duration
	Interval time.Duration
}

// NewManager creates a health manager with a 30 second background interval
func NewManager(logger *zap.Logger) *Manager {
	return NewManagerWithConfig(&HealthConfiguration{
		CheckInterval: 30 * time.Second,
		Checks:        make(map[string]CheckConfig),
	}, logger)
}

// NewManagerWithConfig creates a health manager with specific configuration
func NewManagerWithConfig(config *HealthConfiguration, logger *zap.Logger) *Manager {
	if config == nil {
		return NewManager(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	return &Manager{
		checkers:      make(map[string]*CheckerState),
		lastResults:   make(map[string]CheckResult),
		config:        config,
		checkInterval: config.CheckInterval,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}

	state := &CheckerState{
		checker:  checker,
		enabled:  true,
		interval: m.config.CheckInterval,
		timeout:  checker.Timeout(),
		critical: checker.IsCritical(),
	}
	if checkConfig, ok := m.config.Checks[name]; ok {
		state.enabled = checkConfig.Enabled
		if checkConfig.Interval > 0 {
			state.interval = checkConfig.Interval
		}
		if checkConfig.Timeout > 0 {
			state.timeout = checkConfig.Timeout
		}
		state.critical = checkConfig.Critical
	}

	m.checkers[name] = state
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("enabled", state.enabled),
		zap.Bool("critical", state.critical),
		zap.Duration("timeout", state.timeout),
	)
	return nil
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	startTime := time.Now()
	detailed := m.GetDetailedHealth(ctx)

	overall := detailed.Overall
	overall.Timestamp = detailed.Timestamp
	overall.Duration = time.Since(startTime)
	return overall
}

// GetDetailedHealth runs every enabled checker and reports each result
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	states := m.snapshot()
	timestamp := time.Now()

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components = make(map[string]CheckResult, len(states))
	)
	for name, state := range states {
		if !state.enabled {
			continue
		}
		wg.Add(1)
		go func(name string, state *CheckerState) {
			defer wg.Done()
			result := m.runSingleCheck(ctx, state)
			mu.Lock()
			components[name] = result
			mu.Unlock()
		}(name, state)
	}
	wg.Wait()

	m.mu.Lock()
	for name, result := range components {
		m.lastResults[name] = result
	}
	m.mu.Unlock()

	return Evaluate(components, timestamp)
}

// Evaluate summarizes component results into a detailed report
func Evaluate(components map[string]CheckResult, timestamp time.Time) DetailedHealth {
	summary := HealthSummary{Total: len(components)}
	for _, result := range components {
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if result.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}
	return DetailedHealth{
		Overall:    calculateOverallStatus(components, summary),
		Components: components,
		Summary:    summary,
		Timestamp:  timestamp,
	}
}

func (m *Manager) snapshot() map[string]*CheckerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*CheckerState, len(m.checkers))
	for name, state := range m.checkers {
		out[name] = state
	}
	return out
}

// runSingleCheck executes a single health check bounded by its timeout
func (m *Manager) runSingleCheck(ctx context.Context, state *CheckerState) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, state.timeout)
	defer cancel()

	startTime := time.Now()
	result := state.checker.Check(checkCtx)

	result.Component = state.checker.Name()
	result.Critical = state.critical
	result.Duration = time.Since(startTime)
	result.Timestamp = startTime

	m.mu.Lock()
	state.lastCheck = startTime
	m.mu.Unlock()
	return result
}

// calculateOverallStatus determines overall health from component results
func calculateOverallStatus(components map[string]CheckResult, summary HealthSummary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{
			Status:  StatusUnknown,
			Message: "No health checks registered",
			Live:    true,
		}
	}

	criticalFailures := 0
	nonCriticalFailures := 0
	degradedComponents := 0
	for _, result := range components {
		if result.Status == StatusDegraded {
			degradedComponents++
		}
		if result.Status == StatusUnhealthy {
			if result.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
	}

	overall := OverallHealth{Ready: true, Live: true}
	switch {
	case criticalFailures > 0:
		overall.Status = StatusUnhealthy
		overall.Message = fmt.Sprintf("%d critical component(s) failing", criticalFailures)
		overall.Ready = false // still alive
	case degradedComponents > 0:
		overall.Status = StatusDegraded
		overall.Message = fmt.Sprintf("%d component(s) degraded", degradedComponents)
	case nonCriticalFailures > 0:
		overall.Status = StatusDegraded
		overall.Message = fmt.Sprintf("%d non-critical component(s) failing", nonCriticalFailures)
	default:
		overall.Status = StatusHealthy
		overall.Message = fmt.Sprintf("All %d components healthy", summary.Total)
	}
	overall.Degraded = overall.Status == StatusDegraded || degradedComponents > 0
	return overall
}

// IsReady returns true if the service is ready to serve requests
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive returns true if the service process is responsive. Checkers are
// not run; a live process answering this call is enough.
func (m *Manager) IsLive(context.Context) bool {
	return true
}

// Start begins background health checking
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.started = true
	go m.backgroundChecker(ctx)

	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
	return nil
}

// Stop stops background health checking
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false

	m.logger.Info("Health manager stopped")
	return nil
}

func (m *Manager) backgroundChecker(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runBackgroundChecks(ctx)
		}
	}
}

// runBackgroundChecks executes the checkers whose interval has elapsed
func (m *Manager) runBackgroundChecks(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()
	results := make(map[string]CheckResult)
	for name, state := range m.snapshot() {
		if !state.enabled {
			continue
		}
		m.mu.RLock()
		due := now.Sub(state.lastCheck) >= state.interval
		m.mu.RUnlock()
		if due {
			results[name] = m.runSingleCheck(ctx, state)
		}
	}
	if len(results) == 0 {
		return
	}

	m.mu.Lock()
	for name, result := range results {
		m.lastResults[name] = result
		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("checker", name),
				zap.String("status", result.Status.String()),
				zap.String("error", result.Error),
			)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("Background health checks completed", zap.Int("checks_run", len(results)))
}

// GetLastResults returns the most recent results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		results[name] = result
	}
	return results
}

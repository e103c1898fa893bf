package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.uber.org/zap"
)

// ChangeHandler is called after a reload with the previous and new snapshots
type ChangeHandler func(prev, next Settings)

// Store holds the live Settings snapshot and persists runtime model switches
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	current  Settings
	handlers []ChangeHandler
}

// NewStore resolves settings from path and returns a store holding them
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := Load(path, logger)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, logger: logger, current: s}, nil
}

// Path returns the config.json path backing the store
func (s *Store) Path() string { return s.path }

// Current returns the active snapshot
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers a handler invoked after every successful Reload
func (s *Store) OnChange(h ChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Reload re-resolves settings and notifies handlers outside the lock
func (s *Store) Reload() error {
	next, err := Load(s.path, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	handlers := make([]ChangeHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(prev, next)
	}

	s.logger.Info("Configuration reloaded",
		zap.String("path", s.path),
		zap.String("model", next.Model),
	)
	return nil
}

// ModelChange describes a persisted model switch
type ModelChange struct {
	Previous   string `json:"previous_model"`
	Current    string `json:"current_model"`
	ConfigFile string `json:"config_file"`
}

// SetModel writes model into config.json, keeping its other keys, and applies it
func (s *Store) SetModel(model string) (ModelChange, error) {
	if model == "" {
		return ModelChange{}, fmt.Errorf("model must not be empty")
	}

	v, err := openFile(s.path)
	if err != nil {
		return ModelChange{}, fmt.Errorf("config file %s is unreadable, not overwriting: %w", s.path, err)
	}
	v.Set("model", model)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ModelChange{}, fmt.Errorf("create config dir: %w", err)
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return ModelChange{}, fmt.Errorf("write config file: %w", err)
	}

	s.mu.Lock()
	prev := s.current.Model
	s.current.Model = model
	s.mu.Unlock()

	s.logger.Info("Switched model",
		zap.String("previous", prev),
		zap.String("current", model),
	)
	return ModelChange{Previous: prev, Current: model, ConfigFile: s.path}, nil
}

// Info is the masked view of the configuration returned to callers
type Info struct {
	APIURL           string `json:"api_url"`
	APIKey           string `json:"api_key"`
	Model            string `json:"model"`
	Debug            bool   `json:"debug"`
	LogLevel         string `json:"log_level"`
	LogDir           string `json:"log_dir"`
	TavilyEnabled    bool   `json:"tavily_enabled"`
	FirecrawlEnabled bool   `json:"firecrawl_enabled"`
	ConfigFile       string `json:"config_file"`
	ConfigStatus     string `json:"config_status"`
}

// Info returns the current settings with the API key masked
func (s *Store) Info() Info {
	cur := s.Current()
	info := Info{
		APIURL:           "not configured",
		APIKey:           "not configured",
		Model:            cur.Model,
		Debug:            cur.Debug,
		LogLevel:         cur.LogLevel,
		LogDir:           cur.LogPath(),
		TavilyEnabled:    cur.TavilyEnabled(),
		FirecrawlEnabled: cur.FirecrawlEnabled(),
		ConfigFile:       s.path,
		ConfigStatus:     "configured",
	}
	if err := cur.Validate(); err != nil {
		info.ConfigStatus = "configuration error: " + err.Error()
		return info
	}
	info.APIURL = cur.APIURL
	info.APIKey = util.MaskAPIKey(cur.APIKey)
	return info
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultModel   = "grok-4-fast"
	ConfigFileName = "config.json"
)

var (
	ErrMissingAPIURL = errors.New("API URL is not configured: set GROK_API_URL or api_url in config.json")
	ErrMissingAPIKey = errors.New("API key is not configured: set GROK_API_KEY or api_key in config.json")
)

// Settings is one resolved configuration snapshot
type Settings struct {
	APIURL string
	APIKey string
	Model  string

	Debug    bool
	LogLevel string
	LogDir   string

	RetryMaxAttempts int
	RetryMultiplier  float64
	RetryMaxWait     time.Duration

	SessionTimeout time.Duration
	MaxSessions    int
	MaxSearches    int

	TavilyAPIKey    string
	TavilyAPIURL    string
	FirecrawlAPIKey string
	FirecrawlAPIURL string

	SourcesCacheSize int
	SourcesRedisAddr string
	SourcesRedisTTL  time.Duration

	// ConfigFile is the config.json path the snapshot was resolved from
	ConfigFile string
}

// Validate reports a configuration error when the provider endpoint or key is missing
func (s Settings) Validate() error {
	if strings.TrimSpace(s.APIURL) == "" {
		return ErrMissingAPIURL
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (s Settings) TavilyEnabled() bool    { return s.TavilyAPIKey != "" }
func (s Settings) FirecrawlEnabled() bool { return s.FirecrawlAPIKey != "" }

// LogPath resolves LogDir: absolute paths are used as is, relative ones live under the config dir
func (s Settings) LogPath() string {
	dir := s.LogDir
	if dir == "" {
		dir = "logs"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	base := filepath.Dir(s.ConfigFile)
	if s.ConfigFile == "" {
		base = DefaultDir()
	}
	return filepath.Join(base, dir)
}

type field struct {
	key string
	env string
	def interface{}
}

var fields = []field{
	{"api_url", "GROK_API_URL", ""},
	{"api_key", "GROK_API_KEY", ""},
	{"model", "GROK_MODEL", DefaultModel},
	{"debug", "GROK_DEBUG", false},
	{"log_level", "GROK_LOG_LEVEL", "INFO"},
	{"log_dir", "GROK_LOG_DIR", "logs"},
	{"retry_max_attempts", "GROK_RETRY_MAX_ATTEMPTS", 3},
	{"retry_multiplier", "GROK_RETRY_MULTIPLIER", 1.0},
	{"retry_max_wait", "GROK_RETRY_MAX_WAIT", 10.0},
	{"session_timeout", "GROK_SESSION_TIMEOUT", 600},
	{"max_sessions", "GROK_MAX_SESSIONS", 20},
	{"max_searches", "GROK_MAX_SEARCHES", 50},
	{"tavily_api_key", "TAVILY_API_KEY", ""},
	{"tavily_api_url", "TAVILY_API_URL", "https://api.tavily.com"},
	{"firecrawl_api_key", "FIRECRAWL_API_KEY", ""},
	{"firecrawl_api_url", "FIRECRAWL_API_URL", "https://api.firecrawl.dev/v2"},
	{"sources_cache_size", "SOURCES_CACHE_SIZE", 256},
	{"sources_redis_addr", "SOURCES_REDIS_ADDR", ""},
	{"sources_redis_ttl", "SOURCES_REDIS_TTL", 3600},
}

// DefaultDir returns ~/.config/grok-search
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "grok-search")
	}
	return filepath.Join(home, ".config", "grok-search")
}

// DefaultPath returns GROK_CONFIG_FILE or the config.json under DefaultDir
func DefaultPath() string {
	if p := os.Getenv("GROK_CONFIG_FILE"); p != "" {
		return p
	}
	return filepath.Join(DefaultDir(), ConfigFileName)
}

// LoadDotEnv loads .env files when present; existing process variables win
func LoadDotEnv(logger *zap.Logger, paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logger.Warn("Failed to load env file", zap.String("path", p), zap.Error(err))
			continue
		}
		logger.Debug("Loaded env file", zap.String("path", p))
	}
}

// Load resolves settings with precedence config.json > environment > default.
// A missing or unparsable config.json is treated as empty.
func Load(path string, logger *zap.Logger) (Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	env := viper.New()
	for _, f := range fields {
		env.SetDefault(f.key, f.def)
		if err := env.BindEnv(f.key, f.env); err != nil {
			return Settings{}, fmt.Errorf("bind %s: %w", f.env, err)
		}
	}

	file := readFile(path, logger)

	merged := viper.New()
	for _, f := range fields {
		if file.IsSet(f.key) {
			merged.Set(f.key, file.Get(f.key))
		} else {
			merged.Set(f.key, env.Get(f.key))
		}
	}

	s := Settings{
		APIURL:           strings.TrimSpace(merged.GetString("api_url")),
		APIKey:           strings.TrimSpace(merged.GetString("api_key")),
		Model:            merged.GetString("model"),
		Debug:            truthy(merged.Get("debug")),
		LogLevel:         strings.ToUpper(merged.GetString("log_level")),
		LogDir:           merged.GetString("log_dir"),
		RetryMaxAttempts: merged.GetInt("retry_max_attempts"),
		RetryMultiplier:  merged.GetFloat64("retry_multiplier"),
		RetryMaxWait:     seconds(merged.GetFloat64("retry_max_wait")),
		SessionTimeout:   seconds(merged.GetFloat64("session_timeout")),
		MaxSessions:      merged.GetInt("max_sessions"),
		MaxSearches:      merged.GetInt("max_searches"),
		TavilyAPIKey:     strings.TrimSpace(merged.GetString("tavily_api_key")),
		TavilyAPIURL:     strings.TrimRight(merged.GetString("tavily_api_url"), "/"),
		FirecrawlAPIKey:  strings.TrimSpace(merged.GetString("firecrawl_api_key")),
		FirecrawlAPIURL:  strings.TrimRight(merged.GetString("firecrawl_api_url"), "/"),
		SourcesCacheSize: merged.GetInt("sources_cache_size"),
		SourcesRedisAddr: merged.GetString("sources_redis_addr"),
		SourcesRedisTTL:  seconds(merged.GetFloat64("sources_redis_ttl")),
		ConfigFile:       path,
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.LogLevel == "" {
		s.LogLevel = "INFO"
	}
	if s.RetryMaxAttempts < 0 {
		s.RetryMaxAttempts = 0
	}
	if s.SourcesCacheSize <= 0 {
		s.SourcesCacheSize = 256
	}
	return s, nil
}

func readFile(path string, logger *zap.Logger) *viper.Viper {
	v, err := openFile(path)
	if err != nil {
		logger.Warn("Ignoring unreadable config file", zap.String("path", path), zap.Error(err))
		return viper.New()
	}
	return v
}

// openFile reads path as JSON. A missing file yields an empty viper; a file
// that exists but cannot be parsed is an error.
func openFile(path string) (*viper.Viper, error) {
	v := viper.New()
	if path == "" {
		return v, nil
	}
	if _, err := os.Stat(path); err != nil {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes":
			return true
		}
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}

func seconds(v float64) time.Duration {
	if v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

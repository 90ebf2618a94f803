package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for applyhook.
type Config struct {
	PollingInterval time.Duration
	OAuth           OAuthConfig
	API             APIConfig
	Vacancies       []string // empty: list vacancies through the API on every pass
	Filters         FilterConfig
	ProfileBaseURL  string
	Cache           CacheConfig
	Token           TokenConfig
	Notification    NotificationConfig
	Server          ServerConfig
}

// OAuthConfig describes the authorization-code client registered with Habr Career.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
}

// APIConfig controls how the recruiting API is called.
type APIConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MinDelay   time.Duration // minimum gap between API requests, zero disables
	MaxPages   int           // response pages fetched per vacancy
}

// FilterConfig narrows dynamically listed vacancies by title.
type FilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
}

// CacheConfig selects and bounds the applies cache.
type CacheConfig struct {
	Backend         string // "file" or "sqlite"
	Path            string
	MaxSize         int
	KeepSize        int
	CleanupInterval time.Duration
}

// TokenConfig selects where the access token lives.
type TokenConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type           string `yaml:"type"`        // "log", "webhook" or "telegram"
	WebhookURL     string `yaml:"webhook_url"` // required if type is "webhook"
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64
}

// ServerConfig controls the HTTP surface used for login and manual polls.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	SessionKey string `yaml:"session_key"`
}

const (
	defaultAuthURL        = "https://career.habr.com/integrations/oauth/authorize"
	defaultTokenURL       = "https://career.habr.com/integrations/oauth/token"
	defaultAPIBaseURL     = "https://career.habr.com/api/"
	defaultProfileBaseURL = "https://career.habr.com/"
	defaultUserAgent      = "Chrome/123.0.0.0"
	defaultDBPath         = "applyhook.db"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	PollingInterval string                `yaml:"polling_interval"`
	OAuth           OAuthConfig           `yaml:"oauth"`
	API             rawAPIConfig          `yaml:"api"`
	Vacancies       []flexString          `yaml:"vacancies"`
	Filters         FilterConfig          `yaml:"filters"`
	ProfileBaseURL  string                `yaml:"profile_base_url"`
	Cache           rawCacheConfig        `yaml:"cache"`
	Token           TokenConfig           `yaml:"token"`
	Notification    rawNotificationConfig `yaml:"notification"`
	Server          ServerConfig          `yaml:"server"`
}

type rawAPIConfig struct {
	BaseURL    string `yaml:"base_url"`
	UserAgent  string `yaml:"user_agent"`
	Timeout    string `yaml:"timeout"`
	MaxRetries *int   `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
	MinDelay   string `yaml:"min_delay"`
	MaxPages   int    `yaml:"max_pages"`
}

type rawCacheConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	MaxSize         int    `yaml:"max_size"`
	KeepSize        int    `yaml:"keep_size"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

type rawNotificationConfig struct {
	Type           string `yaml:"type"`
	WebhookURL     string `yaml:"webhook_url"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// flexString accepts vacancy IDs written either as YAML numbers or strings.
type flexString string

func (s *flexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar vacancy id", value.Line)
	}
	*s = flexString(value.Value)
	return nil
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// A .env file next to the config (or in the working directory) is loaded first
// so secrets can be referenced as ${VAR} in the YAML.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := time.ParseDuration(raw.PollingInterval)
	if err != nil {
		return nil, fmt.Errorf("parse polling_interval %q: %w", raw.PollingInterval, err)
	}

	api, err := buildAPIConfig(raw.API)
	if err != nil {
		return nil, err
	}

	cache, err := buildCacheConfig(raw.Cache)
	if err != nil {
		return nil, err
	}

	notification, err := buildNotificationConfig(raw.Notification)
	if err != nil {
		return nil, err
	}

	vacancies := make([]string, 0, len(raw.Vacancies))
	for _, v := range raw.Vacancies {
		vacancies = append(vacancies, string(v))
	}

	oauth := raw.OAuth
	if oauth.AuthURL == "" {
		oauth.AuthURL = defaultAuthURL
	}
	if oauth.TokenURL == "" {
		oauth.TokenURL = defaultTokenURL
	}

	profileBaseURL := raw.ProfileBaseURL
	if profileBaseURL == "" {
		profileBaseURL = defaultProfileBaseURL
	}

	token := raw.Token
	if token.Backend == "" {
		token.Backend = "file"
	}
	if token.Path == "" {
		switch {
		case token.Backend == "sqlite" && cache.Backend == "sqlite":
			token.Path = cache.Path
		case token.Backend == "sqlite":
			token.Path = defaultDBPath
		default:
			token.Path = "token.txt"
		}
	}

	server := raw.Server
	if server.Addr == "" {
		server.Addr = ":5000"
	}

	cfg := &Config{
		PollingInterval: interval,
		OAuth:           oauth,
		API:             api,
		Vacancies:       vacancies,
		Filters:         raw.Filters,
		ProfileBaseURL:  profileBaseURL,
		Cache:           cache,
		Token:           token,
		Notification:    notification,
		Server:          server,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads .env from the config directory and the working directory.
// Variables already set in the environment win; a missing file is fine.
func loadDotEnv(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	seen := make(map[string]bool)
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err == nil {
			_ = godotenv.Load(abs)
		}
	}
}

func buildAPIConfig(raw rawAPIConfig) (APIConfig, error) {
	api := APIConfig{
		BaseURL:    raw.BaseURL,
		UserAgent:  raw.UserAgent,
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 5 * time.Second,
		MaxPages:   raw.MaxPages,
	}
	if api.BaseURL == "" {
		api.BaseURL = defaultAPIBaseURL
	}
	if api.UserAgent == "" {
		api.UserAgent = defaultUserAgent
	}
	if raw.MaxRetries != nil {
		api.MaxRetries = *raw.MaxRetries
	}
	if api.MaxPages == 0 {
		api.MaxPages = 1
	}

	var err error
	if raw.Timeout != "" {
		api.Timeout, err = time.ParseDuration(raw.Timeout)
		if err != nil {
			return api, fmt.Errorf("parse api.timeout %q: %w", raw.Timeout, err)
		}
	}
	if raw.RetryDelay != "" {
		api.RetryDelay, err = time.ParseDuration(raw.RetryDelay)
		if err != nil {
			return api, fmt.Errorf("parse api.retry_delay %q: %w", raw.RetryDelay, err)
		}
	}
	if raw.MinDelay != "" {
		api.MinDelay, err = time.ParseDuration(raw.MinDelay)
		if err != nil {
			return api, fmt.Errorf("parse api.min_delay %q: %w", raw.MinDelay, err)
		}
	}
	return api, nil
}

func buildCacheConfig(raw rawCacheConfig) (CacheConfig, error) {
	cache := CacheConfig{
		Backend:         raw.Backend,
		Path:            raw.Path,
		MaxSize:         raw.MaxSize,
		KeepSize:        raw.KeepSize,
		CleanupInterval: 24 * time.Hour,
	}
	if cache.Backend == "" {
		cache.Backend = "file"
	}
	if cache.Path == "" {
		if cache.Backend == "sqlite" {
			cache.Path = "applyhook.db"
		} else {
			cache.Path = "cached_applies.json"
		}
	}
	if cache.MaxSize == 0 {
		cache.MaxSize = 200
	}
	if cache.KeepSize == 0 {
		cache.KeepSize = 100
	}
	if raw.CleanupInterval != "" {
		d, err := time.ParseDuration(raw.CleanupInterval)
		if err != nil {
			return cache, fmt.Errorf("parse cache.cleanup_interval %q: %w", raw.CleanupInterval, err)
		}
		cache.CleanupInterval = d
	}
	return cache, nil
}

func buildNotificationConfig(raw rawNotificationConfig) (NotificationConfig, error) {
	n := NotificationConfig{
		Type:          raw.Type,
		WebhookURL:    raw.WebhookURL,
		TelegramToken: raw.TelegramToken,
	}
	if n.Type == "" {
		n.Type = "log"
	}
	if raw.TelegramChatID != "" {
		id, err := strconv.ParseInt(raw.TelegramChatID, 10, 64)
		if err != nil {
			return n, fmt.Errorf("parse notification.telegram_chat_id %q: %w", raw.TelegramChatID, err)
		}
		n.TelegramChatID = id
	}
	return n, nil
}

func validate(cfg *Config) error {
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}

	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" || cfg.OAuth.RedirectURI == "" {
		return fmt.Errorf("oauth.client_id, oauth.client_secret and oauth.redirect_uri are required")
	}

	if cfg.API.MaxPages < 1 {
		return fmt.Errorf("api.max_pages must be at least 1, got %d", cfg.API.MaxPages)
	}
	if cfg.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative, got %d", cfg.API.MaxRetries)
	}

	switch cfg.Cache.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("cache.backend must be \"file\" or \"sqlite\", got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.KeepSize < 0 || cfg.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size and cache.keep_size must not be negative")
	}
	if cfg.Cache.KeepSize > cfg.Cache.MaxSize {
		return fmt.Errorf("cache.keep_size (%d) must not exceed cache.max_size (%d)", cfg.Cache.KeepSize, cfg.Cache.MaxSize)
	}
	if cfg.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache.cleanup_interval must be positive, got %v", cfg.Cache.CleanupInterval)
	}

	switch cfg.Token.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("token.backend must be \"file\" or \"sqlite\", got %q", cfg.Token.Backend)
	}
	// Only two sqlite backends may share a file.
	if cfg.Token.Path == cfg.Cache.Path && !(cfg.Token.Backend == "sqlite" && cfg.Cache.Backend == "sqlite") {
		return fmt.Errorf("token.path and cache.path must differ unless both backends are sqlite, got %q", cfg.Token.Path)
	}

	switch cfg.Notification.Type {
	case "log":
	case "webhook":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"webhook\"")
		}
		u, err := url.Parse(cfg.Notification.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notification.webhook_url must be an http(s) URL, got %q", cfg.Notification.WebhookURL)
		}
	case "telegram":
		if cfg.Notification.TelegramToken == "" || cfg.Notification.TelegramChatID == 0 {
			return fmt.Errorf("notification.telegram_token and notification.telegram_chat_id are required when type is \"telegram\"")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\", \"webhook\" or \"telegram\", got %q", cfg.Notification.Type)
	}

	return nil
}

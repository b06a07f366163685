// Package config loads client configuration from defaults, a YAML file, .env and SC_* variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// API configures the REST/socket backend.
type API struct {
	BaseURL       string        `yaml:"base_url"`
	SocketURL     string        `yaml:"socket_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// Media configures the prioritized candidate base URLs for media fallback.
type Media struct {
	BaseURLs []string `yaml:"base_urls"`
}

// Session configures where and how the session is persisted.
type Session struct {
	Dir         string        `yaml:"dir"`
	Profile     string        `yaml:"profile"`
	Passphrase  string        `yaml:"-"` // env only
	Retention   time.Duration `yaml:"retention"`
	DatabaseURL string        `yaml:"database_url"`
}

// Chat configures chat timers and paging.
type Chat struct {
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	TypingTTL     time.Duration `yaml:"typing_ttl"`
	ReadDebounce  time.Duration `yaml:"read_debounce"`
	PageLimit     int           `yaml:"page_limit"`
}

// Feed configures post paging.
type Feed struct {
	PageLimit int `yaml:"page_limit"`
}

// Notifications configures notification paging.
type Notifications struct {
	PageLimit int `yaml:"page_limit"`
}

// Search configures the query debounce.
type Search struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// Config is the whole client configuration.
type Config struct {
	API           API           `yaml:"api"`
	Media         Media         `yaml:"media"`
	Session       Session       `yaml:"session"`
	Chat          Chat          `yaml:"chat"`
	Feed          Feed          `yaml:"feed"`
	Notifications Notifications `yaml:"notifications"`
	Search        Search        `yaml:"search"`
	Logging       Logging       `yaml:"logging"`
}

// Default returns a configuration filled with defaults.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL:       DefaultBaseURL,
			Timeout:       DefaultTimeout,
			MaxRetries:    DefaultMaxRetries,
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultBurst,
		},
		Session: Session{
			Dir:       DefaultDir(),
			Profile:   DefaultProfileName,
			Retention: DefaultSessionRetention,
		},
		Chat: Chat{
			SlowThreshold: DefaultSlowThreshold,
			TypingTTL:     DefaultTypingTTL,
			ReadDebounce:  DefaultReadDebounce,
			PageLimit:     DefaultPageLimit,
		},
		Feed:          Feed{PageLimit: DefaultFeedPageLimit},
		Notifications: Notifications{PageLimit: DefaultNotificationsPageLimit},
		Search:        Search{Debounce: DefaultSearchDebounce},
		Logging:       Logging{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// DefaultDir returns the per-user config directory.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "social-client")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "social-client")
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then .env and SC_* environment variables.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("SC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.API.BaseURL, "SC_API_BASE_URL")
	setString(&c.API.SocketURL, "SC_SOCKET_URL")
	setString(&c.Session.Dir, "SC_SESSION_DIR")
	setString(&c.Session.Profile, "SC_PROFILE")
	setString(&c.Session.Passphrase, "SC_SESSION_PASSPHRASE")
	setString(&c.Session.DatabaseURL, "SC_DATABASE_URL")
	setString(&c.Logging.Level, "SC_LOG_LEVEL")
	setString(&c.Logging.Format, "SC_LOG_FORMAT")
	if v := os.Getenv("SC_MEDIA_BASE_URLS"); v != "" {
		c.Media.BaseURLs = splitList(v)
	}
	if err := setDuration(&c.API.Timeout, "SC_API_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&c.API.MaxRetries, "SC_API_MAX_RETRIES"); err != nil {
		return err
	}
	return nil
}

// fillDerived derives values left empty from other settings.
func (c *Config) fillDerived() {
	if c.API.SocketURL == "" {
		c.API.SocketURL = SocketURLFor(c.API.BaseURL)
	}
	if len(c.Media.BaseURLs) == 0 {
		c.Media.BaseURLs = []string{c.API.BaseURL}
	}
}

// SocketURLFor maps an http(s) base URL to the ws(s) socket endpoint.
func SocketURLFor(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + DefaultSocketPath
	return u.String()
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	var problems []error
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, errors.New("api.timeout must be positive"))
	}
	if c.API.MaxRetries < 0 {
		problems = append(problems, errors.New("api.max_retries must be non-negative"))
	}
	if c.API.RatePerSecond <= 0 || c.API.Burst <= 0 {
		problems = append(problems, errors.New("api.rate_per_second and api.burst must be positive"))
	}
	if c.Session.Profile == "" {
		problems = append(problems, errors.New("session.profile must not be empty"))
	}
	if c.Session.Retention <= 0 {
		problems = append(problems, errors.New("session.retention must be positive"))
	}
	if c.Chat.SlowThreshold <= 0 || c.Chat.TypingTTL <= 0 || c.Chat.ReadDebounce <= 0 {
		problems = append(problems, errors.New("chat timers must be positive"))
	}
	if c.Chat.PageLimit <= 0 {
		problems = append(problems, errors.New("chat.page_limit must be positive"))
	}
	if c.Feed.PageLimit <= 0 {
		problems = append(problems, errors.New("feed.page_limit must be positive"))
	}
	if c.Notifications.PageLimit <= 0 {
		problems = append(problems, errors.New("notifications.page_limit must be positive"))
	}
	if c.Search.Debounce <= 0 {
		problems = append(problems, errors.New("search.debounce must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, errors.New("logging.level must be one of: debug, info, warn, error"))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, errors.New("logging.format must be console or json"))
	}
	return errors.Join(problems...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

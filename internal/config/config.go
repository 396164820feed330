// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Validation errors returned by Load.
var (
	ErrMissingToken        = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrInvalidFetchMode    = errors.New("FETCH_MODE must be auto, direct or browser")
	ErrInvalidCacheBackend = errors.New("CACHE_BACKEND must be memory, sqlite or redis")
	ErrMissingRedisURL     = errors.New("REDIS_URL is required for the redis cache backend")
	ErrInvalidLimits       = errors.New("FEED_DEFAULT_LIMIT must not exceed FEED_MAX_LIMIT")
	ErrInvalidUserID       = errors.New("invalid user ID in ALLOWED_USERS")
	ErrInvalidValue        = errors.New("invalid value")
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	// SiteProfile is a YAML profile path; empty selects the built-in profile.
	SiteProfile string

	FetchMode       string
	BrowserEndpoint string
	BrowserReady    string
	FetchTimeout    time.Duration
	FetchRetries    int
	FetchRate       float64
	UserAgent       string

	PipelineConcurrency int
	FeedDefaultLimit    int
	FeedMaxLimit        int

	CacheTTL        time.Duration
	CacheSize       int
	CacheBackend    string
	CacheSQLitePath string
	RedisURL        string
	RedisPrefix     string

	HTTPAddr string

	TelegramBotToken string
	AllowedUsers     []int64

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		SiteProfile:         os.Getenv("SITE_PROFILE"),
		FetchMode:           strings.ToLower(envOr("FETCH_MODE", "auto")),
		BrowserEndpoint:     os.Getenv("BROWSER_WS_ENDPOINT"),
		BrowserReady:        envOr("BROWSER_READY", "dom"),
		FetchTimeout:        p.duration("FETCH_TIMEOUT", 15*time.Second),
		FetchRetries:        p.int("FETCH_RETRIES", 2),
		FetchRate:           p.float("FETCH_RATE", 0),
		UserAgent:           os.Getenv("USER_AGENT"),
		PipelineConcurrency: p.int("PIPELINE_CONCURRENCY", 5),
		FeedDefaultLimit:    p.int("FEED_DEFAULT_LIMIT", 10),
		FeedMaxLimit:        p.int("FEED_MAX_LIMIT", 50),
		CacheTTL:            p.duration("CACHE_TTL", time.Hour),
		CacheSize:           p.int("CACHE_SIZE", 1000),
		CacheBackend:        strings.ToLower(envOr("CACHE_BACKEND", CacheMemory)),
		CacheSQLitePath:     envOr("CACHE_SQLITE_PATH", "./data/cache.db"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RedisPrefix:         envOr("REDIS_PREFIX", "sitefeed:"),
		HTTPAddr:            envOr("HTTP_ADDR", ":1200"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "text"),
	}
	if p.err != nil {
		return nil, p.err
	}

	users, err := parseUsers(os.Getenv("ALLOWED_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.AllowedUsers = users

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.FetchMode {
	case "auto", "direct", "browser":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFetchMode, c.FetchMode)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if c.RedisURL == "" {
			return ErrMissingRedisURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCacheBackend, c.CacheBackend)
	}
	if c.FeedDefaultLimit > c.FeedMaxLimit {
		return fmt.Errorf("%w: %d > %d", ErrInvalidLimits, c.FeedDefaultLimit, c.FeedMaxLimit)
	}
	return nil
}

// RequireBot checks the settings only the Telegram bot needs.
func (c *Config) RequireBot() error {
	if c.TelegramBotToken == "" {
		return ErrMissingToken
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func parseUsers(raw string) ([]int64, error) {
	var users []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidUserID, s, err)
		}
		users = append(users, uid)
	}
	return users, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser reads typed values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w for %s %q: %w", ErrInvalidValue, key, raw, err)
	}
}

func (p *parser) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configurable server parameters.
type Config struct {
	Port        int    `json:"port"`
	DatabaseURL string `json:"database_url"` // empty selects the in-memory store
	LogLevel    string `json:"log_level"`

	TileCount int `json:"tile_count"`
	BoardCols int `json:"board_cols"`

	SessionSecret     string `json:"session_secret"`
	SessionCookieName string `json:"session_cookie_name"`
	SessionTTLHours   int    `json:"session_ttl_hours"`
	SecureCookies     bool   `json:"secure_cookies"`
	BcryptCost        int    `json:"bcrypt_cost"` // 0 = bcrypt default

	// ExternalAuthBaseURL enables bearer tokens from an external identity
	// provider serving <base>/.well-known/jwks.json.
	ExternalAuthBaseURL string `json:"external_auth_base_url"`

	RequestTimeoutMS int `json:"request_timeout_ms"`
	PollIntervalMS   int `json:"poll_interval_ms"`
	LobbyLimit       int `json:"lobby_limit"`
	HistoryLimit     int `json:"history_limit"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Port:              8080,
		LogLevel:          "info",
		TileCount:         16,
		BoardCols:         4,
		SessionSecret:     "dev-secret-change-me",
		SessionCookieName: "memory_session",
		SessionTTLHours:   8,
		RequestTimeoutMS:  10000,
		PollIntervalMS:    2000,
		LobbyLimit:        50,
		HistoryLimit:      10,
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) *Config {
	cfg := Defaults()

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config file", "tag", "config", "path", path, "err", err)
		}
	}

	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideInt(&cfg.TileCount, "TILE_COUNT")
	overrideInt(&cfg.BoardCols, "BOARD_COLS")
	overrideString(&cfg.SessionSecret, "SESSION_SECRET")
	overrideString(&cfg.SessionCookieName, "SESSION_COOKIE_NAME")
	overrideInt(&cfg.SessionTTLHours, "SESSION_TTL_HOURS")
	overrideBool(&cfg.SecureCookies, "SECURE_COOKIES")
	overrideInt(&cfg.BcryptCost, "BCRYPT_COST")
	overrideString(&cfg.ExternalAuthBaseURL, "EXTERNAL_AUTH_BASE_URL")
	overrideInt(&cfg.RequestTimeoutMS, "REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.PollIntervalMS, "POLL_INTERVAL_MS")
	overrideInt(&cfg.LobbyLimit, "LOBBY_LIMIT")
	overrideInt(&cfg.HistoryLimit, "HISTORY_LIMIT")

	return cfg
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0:
		return fmt.Errorf("port must be positive, got %d", c.Port)
	case c.TileCount <= 0 || c.TileCount%2 != 0:
		return fmt.Errorf("tile count must be a positive even number, got %d", c.TileCount)
	case c.BoardCols <= 0:
		return fmt.Errorf("board cols must be positive, got %d", c.BoardCols)
	case c.SessionSecret == "":
		return errors.New("session secret must not be empty")
	case c.SessionTTLHours <= 0:
		return fmt.Errorf("session ttl must be positive, got %d", c.SessionTTLHours)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

// SessionTTL is the session lifetime.
func (c *Config) SessionTTL() time.Duration { return time.Duration(c.SessionTTLHours) * time.Hour }

// RequestTimeout bounds each HTTP request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid config value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func overrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*field = b
		} else {
			slog.Warn("invalid config value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

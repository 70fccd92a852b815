package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.TileCount != 16 {
		t.Errorf("expected TileCount=16, got %d", cfg.TileCount)
	}
	if cfg.BoardCols != 4 {
		t.Errorf("expected BoardCols=4, got %d", cfg.BoardCols)
	}
	if cfg.SessionCookieName != "memory_session" {
		t.Errorf("expected SessionCookieName=memory_session, got %q", cfg.SessionCookieName)
	}
	if cfg.SessionTTL() != 8*time.Hour {
		t.Errorf("expected 8h session, got %s", cfg.SessionTTL())
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected in-memory store by default, got %q", cfg.DatabaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TILE_COUNT", "12")
	t.Setenv("SECURE_COOKIES", "true")
	t.Setenv("DATABASE_URL", "postgres://localhost/memory")

	cfg := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	if cfg.Port != 9090 {
		t.Errorf("expected Port=9090 after env override, got %d", cfg.Port)
	}
	if cfg.TileCount != 12 {
		t.Errorf("expected TileCount=12 after env override, got %d", cfg.TileCount)
	}
	if !cfg.SecureCookies {
		t.Error("expected SecureCookies after env override")
	}
	if cfg.DatabaseURL != "postgres://localhost/memory" {
		t.Errorf("unexpected DatabaseURL %q", cfg.DatabaseURL)
	}
	// Non-overridden fields should remain default
	if cfg.PollIntervalMS != 2000 {
		t.Errorf("expected PollIntervalMS=2000 (default), got %d", cfg.PollIntervalMS)
	}
}

func TestLoadWithInvalidEnv(t *testing.T) {
	t.Setenv("TILE_COUNT", "invalid")
	t.Setenv("SECURE_COOKIES", "maybe")

	cfg := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	if cfg.TileCount != 16 {
		t.Errorf("expected TileCount=16 (default) with invalid env, got %d", cfg.TileCount)
	}
	if cfg.SecureCookies {
		t.Error("expected SecureCookies=false with invalid env")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"port": 7000, "lobby_limit": 5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7001")

	cfg := LoadFile(path)
	if cfg.LobbyLimit != 5 {
		t.Errorf("expected LobbyLimit=5 from file, got %d", cfg.LobbyLimit)
	}
	if cfg.Port != 7001 {
		t.Errorf("expected env to win over file, got %d", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"odd tiles", func(c *Config) { c.TileCount = 15 }},
		{"zero tiles", func(c *Config) { c.TileCount = 0 }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"no secret", func(c *Config) { c.SessionSecret = "" }},
		{"no ttl", func(c *Config) { c.SessionTTLHours = 0 }},
		{"no cols", func(c *Config) { c.BoardCols = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

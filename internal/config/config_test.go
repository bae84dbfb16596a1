package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndDefaults(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  host: db
  user: arena
  dbname: arena
auth:
  jwt_secret: secret
lobby:
  store: redis
  liveness_window: 2m
leaderboard:
  fire_threshold: 150
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, LobbyStoreRedis, cfg.Lobby.Store)
	assert.Equal(t, 2*time.Minute, cfg.Lobby.LivenessWindow)
	assert.Equal(t, 50, cfg.Lobby.Limit)
	assert.Equal(t, int64(150), cfg.Leaderboard.FireThreshold)
	assert.Equal(t, 10*time.Second, cfg.Leaderboard.PollInterval)
	assert.Equal(t, 3, cfg.Leaderboard.RocketMinDelta)
	assert.Equal(t, "arena:ws:broadcast", cfg.WebSocket.Cluster.BroadcastChannel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: db\n  user: u\n  dbname: d\n"), 0o600))
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("DATABASE_HOST", "env-db")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-db", cfg.Database.Host)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:    DatabaseConfig{Host: "h", User: "u", DBName: "d"},
			Auth:        AuthConfig{JWTSecret: "s"},
			Leaderboard: LeaderboardConfig{PollInterval: time.Second},
			Lobby:       LobbyConfig{Store: LobbyStorePostgres, LivenessWindow: time.Minute, Limit: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"корректная конфигурация", func(c *Config) {}, false},
		{"нет секрета", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"нет хоста БД", func(c *Config) { c.Database.Host = "" }, true},
		{"неизвестное хранилище", func(c *Config) { c.Lobby.Store = "memcached" }, true},
		{"нулевой интервал опроса", func(c *Config) { c.Leaderboard.PollInterval = 0 }, true},
		{"нулевой лимит лобби", func(c *Config) { c.Lobby.Limit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "arena", SSLMode: "disable"}

	assert.Equal(t, "postgres://u:p@h:5432/arena?sslmode=disable", d.PostgresURL())
	assert.Contains(t, d.PostgresConnectionString(), "dbname=arena")
}

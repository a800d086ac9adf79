package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goportfolio/internal/core"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", p)
}

func validConfig() *Config {
	cfg := buildDefaultConfig()
	cfg.Dropbox.AccessToken = "sl.static"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	result, err := Load()
	require.NoError(t, err)
	cfg := result.Config

	assert.Empty(t, result.Path)
	assert.Equal(t, "5001", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Cache.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Cache.StaleAfter)
	assert.Equal(t, 4*time.Hour, cfg.Cache.SnapshotTTL)
	assert.Equal(t, "/Homepage/large_rectangle_database", cfg.Buckets.Base)
	assert.Equal(t, "/Homepage/small_rectangle_database", cfg.Buckets.Overlay)
	assert.Equal(t, []string{"paintings", "photo", "sketchbooks"}, cfg.CollectionNames())
	assert.True(t, cfg.Dropbox.Recursive)
}

func TestLoad_YAMLWithPlaceholders(t *testing.T) {
	writeConfig(t, `
server:
  port: "${TEST_GOPORTFOLIO_PORT:-9999}"
  debug_enabled: true
dropbox:
  refresh_token: "${TEST_GOPORTFOLIO_REFRESH}"
  app_key: key
  app_secret: secret
cache:
  timeout: 45m
  stale_after: 20m
  store:
    type: sqlite
    path: /var/lib/goportfolio/snapshots.db
collections:
  archive: /Portfolio/archive
pairing:
  mode: recency
`)
	t.Setenv("TEST_GOPORTFOLIO_REFRESH", "refresh-123")

	result, err := Load()
	require.NoError(t, err)
	cfg := result.Config

	assert.NotEmpty(t, result.Path)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.True(t, cfg.Server.DebugEnabled)
	assert.Equal(t, "refresh-123", cfg.Dropbox.RefreshToken)
	assert.True(t, cfg.Dropbox.HasRefreshCredentials())
	assert.Equal(t, 45*time.Minute, cfg.Cache.Timeout)
	assert.Equal(t, "sqlite", cfg.Cache.Store.Type)
	assert.Equal(t, map[string]string{"archive": "/Portfolio/archive"}, cfg.Collections, "collections replace the defaults")
	assert.Equal(t, "recency", cfg.Pairing.Mode)
	// untouched keys keep their defaults
	assert.Equal(t, 4*time.Hour, cfg.Dropbox.LinkTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	writeConfig(t, "server: [unclosed")
	_, err := Load()
	assert.Error(t, err)
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "3000", cfg.Server.Port)
			},
		},
		{
			name: "credential overrides",
			envVars: map[string]string{
				"DROPBOX_REFRESH_TOKEN": "r",
				"DROPBOX_APP_KEY":       "k",
				"DROPBOX_APP_SECRET":    "s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Dropbox.HasRefreshCredentials())
			},
		},
		{
			name:    "store overrides",
			envVars: map[string]string{"CACHE_STORE": "redis", "CACHE_STORE_URL": "redis://localhost:6379/0"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis", cfg.Cache.Store.Type)
				assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.Store.URL)
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "true", "DEBUG_ENABLED": "1", "DROPBOX_RECURSIVE": "false"},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Metrics.Enabled)
				assert.True(t, cfg.Server.DebugEnabled)
				assert.False(t, cfg.Dropbox.Recursive)
			},
		},
		{
			name:    "duration overrides",
			envVars: map[string]string{"CACHE_TIMEOUT": "50m", "CACHE_REFRESH_INTERVAL": "30m", "DROPBOX_TIMEOUT": "15s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 50*time.Minute, cfg.Cache.Timeout)
				assert.Equal(t, 30*time.Minute, cfg.Cache.RefreshInterval)
				assert.Equal(t, 15*time.Second, cfg.Dropbox.Timeout)
			},
		},
		{
			name:    "list overrides",
			envVars: map[string]string{"ALLOWED_ORIGINS": "https://a.example,https://b.example"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name:    "collections override",
			envVars: map[string]string{"COLLECTIONS": "prints:/Portfolio/prints,zines:/Portfolio/zines"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, map[string]string{"prints": "/Portfolio/prints", "zines": "/Portfolio/zines"}, cfg.Collections)
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "5001", cfg.Server.Port)
				assert.Equal(t, time.Hour, cfg.Cache.Timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidDuration(t *testing.T) {
	t.Setenv("CACHE_TIMEOUT", "soon")
	assert.Error(t, applyEnvOverrides(buildDefaultConfig()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantErr    bool
		credential bool
	}{
		{"static token", func(*Config) {}, false, false},
		{"refresh triple", func(c *Config) {
			c.Dropbox.AccessToken = ""
			c.Dropbox.RefreshToken, c.Dropbox.AppKey, c.Dropbox.AppSecret = "r", "k", "s"
		}, false, false},
		{"no credentials", func(c *Config) { c.Dropbox.AccessToken = "" }, true, true},
		{"partial triple", func(c *Config) { c.Dropbox.RefreshToken = "r" }, true, true},
		{"timeout equals link ttl", func(c *Config) { c.Cache.Timeout = 4 * time.Hour }, true, false},
		{"stale after timeout", func(c *Config) { c.Cache.StaleAfter = 2 * time.Hour }, true, false},
		{"stale disabled", func(c *Config) { c.Cache.StaleAfter = 0 }, false, false},
		{"unknown store", func(c *Config) { c.Cache.Store.Type = "memcached" }, true, false},
		{"reserved collection", func(c *Config) { c.Collections["images"] = "/x" }, true, false},
		{"collection without folder", func(c *Config) { c.Collections["empty"] = "" }, true, false},
		{"unknown pairing mode", func(c *Config) { c.Pairing.Mode = "random" }, true, false},
		{"missing base folder", func(c *Config) { c.Buckets.Base = "" }, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.credential, core.IsType(err, core.ErrorTypeCredential))
		})
	}
}

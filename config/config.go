// Package config provides configuration management for the application.
//
// Values are layered: built-in defaults, then an optional YAML file (with
// ${VAR} and ${VAR:-default} placeholders expanded from the environment),
// then environment variables. A .env file in the working directory is loaded
// into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"goportfolio/internal/cache"
	"goportfolio/internal/core"
	"goportfolio/internal/pairing"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{"config.yaml", "config/config.yaml"}

// reservedCollections would shadow a fixed API route.
var reservedCollections = []string{"health", "images", "generateOverlay", "debug"}

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Dropbox     DropboxConfig     `yaml:"dropbox"`
	Cache       CacheConfig       `yaml:"cache"`
	Buckets     BucketsConfig     `yaml:"buckets"`
	Collections map[string]string `yaml:"collections" env:"COLLECTIONS"`
	Pairing     PairingConfig     `yaml:"pairing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                  string   `yaml:"port" env:"PORT"`
	AllowedOrigins        []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowedOriginSuffixes []string `yaml:"allowed_origin_suffixes" env:"ALLOWED_ORIGIN_SUFFIXES"`
	DebugEnabled          bool     `yaml:"debug_enabled" env:"DEBUG_ENABLED"`
	BodySizeLimit         int64    `yaml:"body_size_limit" env:"BODY_SIZE_LIMIT"`
}

// DropboxConfig holds storage provider credentials and client tuning
type DropboxConfig struct {
	AccessToken  string `yaml:"access_token" env:"DROPBOX_ACCESS_TOKEN"`
	RefreshToken string `yaml:"refresh_token" env:"DROPBOX_REFRESH_TOKEN"`
	AppKey       string `yaml:"app_key" env:"DROPBOX_APP_KEY"`
	AppSecret    string `yaml:"app_secret" env:"DROPBOX_APP_SECRET"`
	APIURL       string `yaml:"api_url" env:"DROPBOX_API_URL"`
	TokenURL     string `yaml:"token_url" env:"DROPBOX_TOKEN_URL"`

	Timeout         time.Duration `yaml:"timeout" env:"DROPBOX_TIMEOUT"`
	MaxRetries      int           `yaml:"max_retries" env:"DROPBOX_MAX_RETRIES"`
	Recursive       bool          `yaml:"recursive" env:"DROPBOX_RECURSIVE"`
	LinkTTL         time.Duration `yaml:"link_ttl" env:"DROPBOX_LINK_TTL"`
	LinkConcurrency int           `yaml:"link_concurrency" env:"DROPBOX_LINK_CONCURRENCY"`
}

// HasRefreshCredentials reports whether the refresh-grant triple is complete.
func (d DropboxConfig) HasRefreshCredentials() bool {
	return d.RefreshToken != "" && d.AppKey != "" && d.AppSecret != ""
}

// CacheConfig holds freshness policy and the durable snapshot store
type CacheConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"CACHE_TIMEOUT"`
	StaleAfter      time.Duration `yaml:"stale_after" env:"CACHE_STALE_AFTER"`
	SnapshotTTL     time.Duration `yaml:"snapshot_ttl" env:"CACHE_SNAPSHOT_TTL"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"CACHE_REFRESH_INTERVAL"`
	Store           StoreConfig   `yaml:"store"`
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	// Type is one of none, local, redis, badger, sqlite, postgresql, mongodb
	Type      string `yaml:"type" env:"CACHE_STORE"`
	Path      string `yaml:"path" env:"CACHE_STORE_PATH"`
	URL       string `yaml:"url" env:"CACHE_STORE_URL"`
	KeyPrefix string `yaml:"key_prefix" env:"CACHE_STORE_KEY_PREFIX"`
	Database  string `yaml:"database" env:"CACHE_STORE_DATABASE"`
}

// BucketsConfig names the folders paired by the overlay endpoints
type BucketsConfig struct {
	Base    string `yaml:"base" env:"BASE_FOLDER"`
	Overlay string `yaml:"overlay" env:"OVERLAY_FOLDER"`
}

// PairingConfig selects the pairing policy
type PairingConfig struct {
	Mode string `yaml:"mode" env:"PAIRING_MODE"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// LogConfig holds slog handler settings
type LogConfig struct {
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Level  string `yaml:"level" env:"LOG_LEVEL"`
}

// LoadResult is the loaded configuration and where it came from.
type LoadResult struct {
	Config *Config
	// Path is the YAML file that was applied, empty when none was found.
	Path string
}

// Load reads configuration from defaults, the optional YAML file and the
// environment. It does not validate; call Config.Validate.
func Load() (*LoadResult, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5001",
			AllowedOrigins: []string{
				"https://luccas-portfolio.com",
				"http://localhost:3000",
				"http://localhost:3001",
				"http://localhost:5173",
			},
			AllowedOriginSuffixes: []string{".luccas-portfolio.com", ".pages.dev"},
		},
		Dropbox: DropboxConfig{
			Timeout:         30 * time.Second,
			MaxRetries:      2,
			Recursive:       true,
			LinkTTL:         4 * time.Hour,
			LinkConcurrency: 4,
		},
		Cache: CacheConfig{
			Timeout:     time.Hour,
			StaleAfter:  30 * time.Minute,
			SnapshotTTL: 4 * time.Hour,
			Store: StoreConfig{
				Type: cache.TypeNone,
			},
		},
		Buckets: BucketsConfig{
			Base:    "/Homepage/large_rectangle_database",
			Overlay: "/Homepage/small_rectangle_database",
		},
		Collections: map[string]string{
			"sketchbooks": "/Portfolio/sketchbooks",
			"paintings":   "/Portfolio/paintings",
			"photo":       "/Portfolio/photo",
		},
		Pairing: PairingConfig{Mode: string(pairing.ModeCycle)},
		Metrics: MetricsConfig{Endpoint: "/metrics"},
		Log:     LogConfig{Format: "auto", Level: "info"},
	}
}

func findConfigFile() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := []byte(expandString(string(raw)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// yaml.v3 merges into a non-nil map; a collections block replaces the defaults
	var override struct {
		Collections map[string]string `yaml:"collections"`
	}
	if err := yaml.Unmarshal(expanded, &override); err == nil && override.Collections != nil {
		cfg.Collections = override.Collections
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A placeholder without a
// default whose variable is unset or empty is left as-is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return m
	})
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	d := c.Dropbox
	partial := d.RefreshToken != "" || d.AppKey != "" || d.AppSecret != ""
	switch {
	case d.HasRefreshCredentials():
	case partial:
		return core.NewCredentialError("DROPBOX_REFRESH_TOKEN, DROPBOX_APP_KEY and DROPBOX_APP_SECRET must be set together", nil)
	case d.AccessToken == "":
		return core.NewCredentialError("set DROPBOX_ACCESS_TOKEN or DROPBOX_REFRESH_TOKEN with DROPBOX_APP_KEY and DROPBOX_APP_SECRET", nil)
	}

	if c.Cache.Timeout <= 0 {
		errs = append(errs, errors.New("cache.timeout must be positive"))
	}
	if d.LinkTTL > 0 && c.Cache.Timeout >= d.LinkTTL {
		errs = append(errs, fmt.Errorf("cache.timeout (%s) must be shorter than dropbox.link_ttl (%s)", c.Cache.Timeout, d.LinkTTL))
	}
	if c.Cache.StaleAfter < 0 || (c.Cache.StaleAfter > 0 && c.Cache.StaleAfter >= c.Cache.Timeout) {
		errs = append(errs, fmt.Errorf("cache.stale_after (%s) must be shorter than cache.timeout (%s)", c.Cache.StaleAfter, c.Cache.Timeout))
	}
	if c.Cache.RefreshInterval < 0 {
		errs = append(errs, errors.New("cache.refresh_interval must not be negative"))
	}
	if d.MaxRetries < 0 {
		errs = append(errs, errors.New("dropbox.max_retries must not be negative"))
	}

	validStores := []string{"", cache.TypeNone, cache.TypeLocal, cache.TypeRedis, cache.TypeBadger, cache.TypeSQLite, cache.TypePostgreSQL, cache.TypeMongoDB}
	if !slices.Contains(validStores, c.Cache.Store.Type) {
		errs = append(errs, fmt.Errorf("unknown cache.store.type %q", c.Cache.Store.Type))
	}

	if c.Buckets.Base == "" || c.Buckets.Overlay == "" {
		errs = append(errs, errors.New("buckets.base and buckets.overlay are required"))
	}
	for name, folder := range c.Collections {
		if slices.Contains(reservedCollections, name) || name == BaseBucket || name == OverlayBucket {
			errs = append(errs, fmt.Errorf("collection name %q is reserved", name))
		}
		if folder == "" {
			errs = append(errs, fmt.Errorf("collection %q has no folder", name))
		}
	}

	if _, err := pairing.ParseMode(c.Pairing.Mode); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Bucket names used for the base and overlay folders.
const (
	BaseBucket    = "base"
	OverlayBucket = "overlay"
)

// CollectionNames returns the collection names sorted.
func (c *Config) CollectionNames() []string {
	names := make([]string, 0, len(c.Collections))
	for name := range c.Collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

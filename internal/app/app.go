// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the goportfolio server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"goportfolio/config"
	"goportfolio/internal/cache"
	"goportfolio/internal/credentials"
	"goportfolio/internal/dropbox"
	"goportfolio/internal/gallery"
	"goportfolio/internal/httpclient"
	"goportfolio/internal/pairing"
	"goportfolio/internal/pkg/apiclient"
	"goportfolio/internal/server"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config  *config.Config
	store   cache.Store
	dropbox *dropbox.Client
	gallery *gallery.Gallery
	engine  *pairing.Engine
	server  *server.Server

	stopRefresh func()

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// HTTPClient is used for every storage provider call. Nil builds one from
	// the dropbox timeout.
	HTTPClient *http.Client
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	if err := appCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mode, err := pairing.ParseMode(appCfg.Pairing.Mode)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := httpclient.WithTimeout(appCfg.Dropbox.Timeout)
		httpClient = httpclient.NewHTTPClient(&clientCfg)
	}

	creds, err := credentials.New(credentials.Config{
		AccessToken:  appCfg.Dropbox.AccessToken,
		RefreshToken: appCfg.Dropbox.RefreshToken,
		ClientID:     appCfg.Dropbox.AppKey,
		ClientSecret: appCfg.Dropbox.AppSecret,
		TokenURL:     appCfg.Dropbox.TokenURL,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credentials: %w", err)
	}

	baseURL := appCfg.Dropbox.APIURL
	if baseURL == "" {
		baseURL = dropbox.DefaultBaseURL
	}
	apiCfg := apiclient.DefaultConfig(dropbox.ServiceName, baseURL)
	apiCfg.MaxRetries = appCfg.Dropbox.MaxRetries
	dbx := dropbox.NewClient(apiclient.New(httpClient, apiCfg, creds))
	fetcher := dropbox.NewFetcherFromClient(dbx, appCfg.Dropbox.Recursive, appCfg.Dropbox.LinkConcurrency)

	store, err := cache.New(ctx, cache.Config{
		Type:      appCfg.Cache.Store.Type,
		Path:      appCfg.Cache.Store.Path,
		URL:       appCfg.Cache.Store.URL,
		KeyPrefix: appCfg.Cache.Store.KeyPrefix,
		Database:  appCfg.Cache.Store.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	specs := []gallery.BucketSpec{
		{Name: config.BaseBucket, Folder: appCfg.Buckets.Base},
		{Name: config.OverlayBucket, Folder: appCfg.Buckets.Overlay},
	}
	for _, name := range appCfg.CollectionNames() {
		specs = append(specs, gallery.BucketSpec{Name: name, Folder: appCfg.Collections[name]})
	}

	g, err := gallery.New(fetcher, store, gallery.Policy{
		Timeout:     appCfg.Cache.Timeout,
		StaleAfter:  appCfg.Cache.StaleAfter,
		SnapshotTTL: appCfg.Cache.SnapshotTTL,
		LinkTTL:     appCfg.Dropbox.LinkTTL,
	}, specs...)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize gallery: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize gallery: %w", err)
	}

	app := &App{
		config:  appCfg,
		store:   store,
		dropbox: dbx,
		gallery: g,
		engine:  pairing.NewEngine(mode),
	}

	app.logStartupInfo(cfg.AppConfig.Path)

	handler := server.NewHandler(g, app.engine, dbx, server.HandlerConfig{
		BaseBucket:    config.BaseBucket,
		OverlayBucket: config.OverlayBucket,
		Collections:   appCfg.CollectionNames(),
		Tokens:        creds,
	})
	app.server = server.New(handler, &server.Config{
		CORS: server.CORSConfig{
			AllowedOrigins:        appCfg.Server.AllowedOrigins,
			AllowedOriginSuffixes: appCfg.Server.AllowedOriginSuffixes,
		},
		DebugEnabled:    appCfg.Server.DebugEnabled,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
	})

	return app, nil
}

// Gallery returns the bucket cache.
func (a *App) Gallery() *gallery.Gallery {
	return a.gallery
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Warm loads stored snapshots and then refreshes every bucket, blocking until done.
// Fresh snapshots are persisted to the durable store.
func (a *App) Warm(ctx context.Context) error {
	loaded := a.gallery.LoadStored(ctx)
	snaps, err := a.gallery.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("warm: %w", err)
	}
	for _, snap := range snaps {
		slog.Info("bucket warmed", "bucket", snap.Name, "count", len(snap.Assets))
	}
	slog.Info("warm complete", "buckets", len(snaps), "restored_from_store", loaded)
	return nil
}

// StartBackground restores stored snapshots, kicks off a non-blocking startup
// refresh and starts the scheduled refresh when one is configured.
func (a *App) StartBackground(ctx context.Context) {
	if n := a.gallery.LoadStored(ctx); n > 0 {
		slog.Info("restored snapshots from durable store", "buckets", n, "store", a.store.Type())
	}
	go func() {
		if err := <-a.gallery.RefreshAsync(gallery.TriggerStartup); err == nil {
			slog.Info("startup refresh complete")
		}
	}()
	a.stopRefresh = a.gallery.StartBackgroundRefresh(a.config.Cache.RefreshInterval)
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(ctx context.Context, addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.StartBackground(ctx)

	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context timeout/cancellation.
// 2. Scheduled refresh stop.
// 3. Gallery close (cancels and waits for background refreshes).
// 4. Snapshot store close.
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2-3. Stop refreshes before the store they write to goes away
	if a.stopRefresh != nil {
		a.stopRefresh()
	}
	if a.gallery != nil {
		a.gallery.Close()
	}

	// 4. Close the snapshot store
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("snapshot store close error", "error", err)
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(configPath string) {
	cfg := a.config

	if configPath != "" {
		slog.Info("configuration file loaded", "path", configPath)
	}

	if cfg.Dropbox.HasRefreshCredentials() {
		slog.Info("storage credentials configured", "mode", "refresh_token")
	} else {
		slog.Warn("storage credentials use a static access token; it cannot be refreshed when it expires")
	}

	slog.Info("buckets configured",
		"base", cfg.Buckets.Base,
		"overlay", cfg.Buckets.Overlay,
		"collections", cfg.CollectionNames(),
	)
	slog.Info("cache policy",
		"timeout", cfg.Cache.Timeout,
		"stale_after", cfg.Cache.StaleAfter,
		"snapshot_ttl", cfg.Cache.SnapshotTTL,
		"refresh_interval", cfg.Cache.RefreshInterval,
		"store", a.store.Type(),
	)
	slog.Info("pairing configured", "mode", a.engine.Mode())

	// Metrics configuration
	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Server.DebugEnabled {
		slog.Warn("debug endpoint enabled", "path", "/api/debug")
	}
}

// Package server provides HTTP handlers and server setup for the image pairing API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"goportfolio/internal/core"
	"goportfolio/internal/dropbox"
	"goportfolio/internal/gallery"
	"goportfolio/internal/pairing"
)

// Catalog serves bucket snapshots.
type Catalog interface {
	Ensure(ctx context.Context, names ...string) ([]*core.BucketSnapshot, error)
	Refresh(ctx context.Context, names ...string) ([]*core.BucketSnapshot, error)
	Bucket(name string) (*gallery.Bucket, bool)
	Status() []gallery.BucketStatus
	StoreType() string
}

// Pairer picks the next base/overlay pair.
type Pairer interface {
	Next(base, overlay *core.BucketSnapshot) (core.Pair, error)
	Mode() pairing.Mode
}

// Diagnostics reports on the upstream account, for /api/debug.
type Diagnostics interface {
	CurrentAccount(ctx context.Context) (*dropbox.Account, error)
	Calls() int64
	CircuitState() string
}

// TokenStatus describes the storage credential, for /api/debug.
type TokenStatus interface {
	Refreshable() bool
	Expiry() time.Time
}

// HandlerConfig names the buckets the handlers read.
type HandlerConfig struct {
	BaseBucket    string
	OverlayBucket string
	Collections   []string
	// Tokens is optional; nil omits credential details from /api/debug.
	Tokens        TokenStatus
}

// Handler holds the HTTP handlers
type Handler struct {
	catalog     Catalog
	pairer      Pairer
	diagnostics Diagnostics
	cfg         HandlerConfig
}

// NewHandler creates a new handler. diagnostics may be nil.
func NewHandler(catalog Catalog, pairer Pairer, diagnostics Diagnostics, cfg HandlerConfig) *Handler {
	return &Handler{
		catalog:     catalog,
		pairer:      pairer,
		diagnostics: diagnostics,
		cfg:         cfg,
	}
}

type bucketHealth struct {
	Count     int        `json:"count"`
	LastFetch *time.Time `json:"lastFetch"`
}

// Health handles GET /api/health
func (h *Handler) Health(c echo.Context) error {
	buckets := make(map[string]bucketHealth)
	for _, st := range h.catalog.Status() {
		bh := bucketHealth{Count: st.Count}
		if !st.LastFetch.IsZero() {
			lf := st.LastFetch
			bh.LastFetch = &lf
		}
		buckets[st.Name] = bh
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":       "OK",
		"message":      "Portfolio image API is running",
		"buckets":      buckets,
		"pairingMode":  h.pairer.Mode(),
		"durableStore": h.catalog.StoreType(),
	})
}

type totalCounts struct {
	Base    int `json:"base"`
	Overlay int `json:"overlay"`
}

// Images handles GET /api/images
func (h *Handler) Images(c echo.Context) error {
	base, overlay, err := h.ensurePair(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}

	pair, err := h.pairer.Next(base, overlay)
	if err != nil {
		return h.handlePairError(c, err, base, overlay)
	}

	slog.Debug("serving pair", "base", pair.Base.Name, "overlay", pair.Overlay.Name)

	return c.JSON(http.StatusOK, map[string]any{
		"baseImage":     pair.Base,
		"overlayImage":  pair.Overlay,
		"baseImages":    base.Assets,
		"overlayImages": overlay.Assets,
		"totalCounts":   totalCounts{Base: len(base.Assets), Overlay: len(overlay.Assets)},
	})
}

// GenerateOverlay handles GET /api/generateOverlay
func (h *Handler) GenerateOverlay(c echo.Context) error {
	base, overlay, err := h.ensurePair(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}

	pair, err := h.pairer.Next(base, overlay)
	if err != nil {
		return h.handlePairError(c, err, base, overlay)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"baseImage":    pair.Base,
		"overlayImage": pair.Overlay,
		"pairIndex":    pair.Index,
		"queueLength":  pair.QueueLength,
		"mode":         h.pairer.Mode(),
		"totalCounts":  totalCounts{Base: len(base.Assets), Overlay: len(overlay.Assets)},
	})
}

// Collection handles GET /api/:collection
func (h *Handler) Collection(c echo.Context) error {
	name := c.Param("collection")
	if !slices.Contains(h.cfg.Collections, name) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	start := time.Now()
	forced := c.QueryParam("refresh") == "true"

	var (
		snaps []*core.BucketSnapshot
		err   error
	)
	if forced {
		snaps, err = h.catalog.Refresh(c.Request().Context(), name)
	} else {
		snaps, err = h.catalog.Ensure(c.Request().Context(), name)
	}
	if err != nil {
		return handleError(c, err)
	}

	snap := snaps[0]
	images := snap.Assets
	if images == nil {
		images = []core.ImageAsset{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"images":     images,
		"totalCount": len(images),
		"cached":     !forced && snap.FetchedAt.Before(start),
		"lastFetch":  snap.FetchedAt,
	})
}

type debugBucket struct {
	Folder         string              `json:"folder"`
	Count          int                 `json:"count"`
	LastFetch      time.Time           `json:"lastFetch"`
	FoldersScanned int                 `json:"foldersScanned"`
	FilesListed    int                 `json:"filesListed"`
	Unresolved     int                 `json:"unresolved"`
	Extensions     map[string]int      `json:"extensions"`
	ScanErrors     []dropbox.ScanError `json:"scanErrors"`
	RefreshError   string              `json:"refreshError,omitempty"`
}

// Debug handles GET /api/debug. It forces a scan of the base and overlay
// buckets and reports what the scan saw.
func (h *Handler) Debug(c echo.Context) error {
	ctx := c.Request().Context()
	resp := map[string]any{}

	if h.diagnostics != nil {
		account, err := h.diagnostics.CurrentAccount(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error":            "debug_failed",
				"details":          err.Error(),
				"dropboxConnected": false,
			})
		}
		resp["dropboxConnected"] = true
		resp["accountInfo"] = map[string]string{"name": account.Name.DisplayName, "email": account.Email}
	}

	buckets := make(map[string]debugBucket)
	for _, name := range []string{h.cfg.BaseBucket, h.cfg.OverlayBucket} {
		b, ok := h.catalog.Bucket(name)
		if !ok {
			continue
		}
		d := debugBucket{Folder: b.Folder()}
		if _, err := h.catalog.Refresh(ctx, name); err != nil {
			d.RefreshError = err.Error()
		}
		d.Count = len(b.Get())
		d.LastFetch = b.LastFetch()
		if scan := b.LastScan(); scan != nil {
			d.Unresolved = scan.Unresolved
			if l := scan.Listing; l != nil {
				d.FoldersScanned = l.FoldersScanned
				d.FilesListed = len(l.Files)
				d.Extensions = l.Extensions
				d.ScanErrors = l.Errors
			}
		}
		buckets[name] = d
	}
	resp["buckets"] = buckets

	if h.diagnostics != nil {
		resp["apiCalls"] = h.diagnostics.Calls()
		resp["circuitState"] = h.diagnostics.CircuitState()
	}
	if tokens := h.cfg.Tokens; tokens != nil {
		cred := map[string]any{"refreshable": tokens.Refreshable()}
		if exp := tokens.Expiry(); !exp.IsZero() {
			cred["expiresAt"] = exp
		}
		resp["credentials"] = cred
	}
	resp["durableStore"] = h.catalog.StoreType()
	resp["pairingMode"] = h.pairer.Mode()

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ensurePair(ctx context.Context) (base, overlay *core.BucketSnapshot, err error) {
	snaps, err := h.catalog.Ensure(ctx, h.cfg.BaseBucket, h.cfg.OverlayBucket)
	if err != nil {
		return nil, nil, err
	}
	return snaps[0], snaps[1], nil
}

func (h *Handler) handlePairError(c echo.Context, err error, base, overlay *core.BucketSnapshot) error {
	if core.IsType(err, core.ErrorTypeEmptyBucket) {
		return c.JSON(http.StatusNotFound, map[string]any{
			"error":              string(core.ErrorTypeEmptyBucket),
			"details":            "No images found in storage folders",
			"baseImagesCount":    assetCount(base),
			"overlayImagesCount": assetCount(overlay),
		})
	}
	return handleError(c, err)
}

func assetCount(snap *core.BucketSnapshot) int {
	if snap == nil {
		return 0
	}
	return len(snap.Assets)
}

// handleError converts service errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var svcErr *core.Error
	if errors.As(err, &svcErr) {
		return c.JSON(svcErr.HTTPStatusCode(), svcErr.ToJSON())
	}

	requestID := core.GetRequestID(c.Request().Context())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("request aborted", "error", err, "request_id", requestID)
	} else {
		slog.Error("unexpected error", "error", err, "request_id", requestID)
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "internal_error",
		"details": "an unexpected error occurred",
	})
}

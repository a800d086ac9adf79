package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
	corsMaxAge       = "86400"
)

// CORSConfig lists the origins allowed to read responses cross-origin.
type CORSConfig struct {
	// AllowedOrigins are matched exactly, e.g. "https://example.com".
	AllowedOrigins []string
	// AllowedOriginSuffixes are matched against the origin host, e.g. ".pages.dev".
	AllowedOriginSuffixes []string
}

// originAllowed reports whether origin is on the allow-list or its host ends
// with one of the suffixes.
func (c CORSConfig) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(c.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range c.AllowedOriginSuffixes {
		if suffix != "" && strings.HasSuffix(host, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// CORSMiddleware answers preflight requests with 204 and echoes allowed origins
// back on every response. Disallowed origins get no Access-Control-Allow-Origin.
func CORSMiddleware(cfg CORSConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if origin := c.Request().Header.Get(echo.HeaderOrigin); cfg.originAllowed(origin) {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
			h.Set(echo.HeaderAccessControlMaxAge, corsMaxAge)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

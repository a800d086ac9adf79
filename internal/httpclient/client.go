// Package httpclient builds the HTTP client shared by storage API and
// token endpoint calls.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"goportfolio/internal/version"
)

// Config bounds connections to the storage provider. Calls go to a couple of
// hosts only, so the idle pool stays small.
type Config struct {
	Timeout               time.Duration // whole request, body included
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	KeepAlive             time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultConfig sizes timeouts for listing pages and link batches, which
// finish well under 30s. HTTP_TIMEOUT and HTTP_RESPONSE_HEADER_TIMEOUT
// override them, as whole seconds or a duration string such as "45s".
func DefaultConfig() Config {
	return Config{
		Timeout:               envDuration("HTTP_TIMEOUT", 30*time.Second),
		ResponseHeaderTimeout: envDuration("HTTP_RESPONSE_HEADER_TIMEOUT", 20*time.Second),
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		KeepAlive:             30 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// WithTimeout is DefaultConfig with the request timeout set from the dropbox
// config; the header timeout never exceeds it. Zero keeps the default.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
		cfg.ResponseHeaderTimeout = min(cfg.ResponseHeaderTimeout, timeout)
	}
	return cfg
}

// NewHTTPClient builds a client from cfg, or from DefaultConfig when cfg is nil.
// Every request carries a goportfolio User-Agent.
func NewHTTPClient(cfg *Config) *http.Client {
	if cfg == nil {
		d := DefaultConfig()
		cfg = &d
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
	}

	return &http.Client{
		Transport: &userAgent{next: transport, value: "goportfolio/" + version.Version},
		Timeout:   cfg.Timeout,
	}
}

// NewDefaultHTTPClient is NewHTTPClient(nil).
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(nil)
}

type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", u.value)
	return u.next.RoundTrip(req)
}

// envDuration reads whole seconds or a Go duration from key, falling back to
// def when unset or unparsable.
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return def
}

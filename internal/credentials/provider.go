// Package credentials supplies bearer tokens for the storage API.
// A static long-lived token is served as-is; a refresh token is exchanged
// for short-lived access tokens that are cached until shortly before expiry.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"goportfolio/internal/core"
	"goportfolio/internal/observability"
)

const (
	// DefaultTokenURL is the Dropbox OAuth2 token endpoint.
	DefaultTokenURL = "https://api.dropbox.com/oauth2/token"

	// DefaultSafetyMargin is how long before expiry a cached token is considered stale.
	DefaultSafetyMargin = 5 * time.Minute

	// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
	defaultTokenLifetime = 4 * time.Hour

	serviceName = "dropbox-oauth"
)

// Config holds the credential material.
// Either AccessToken, or the RefreshToken/ClientID/ClientSecret triple, must be set.
type Config struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
	SafetyMargin time.Duration
	HTTPClient   *http.Client
}

// Source is what API clients need from a credential provider.
type Source interface {
	// Token returns a valid bearer token, refreshing it when required.
	Token(ctx context.Context) (string, error)
	// ForceRefresh discards rejected and returns a freshly exchanged token.
	ForceRefresh(ctx context.Context, rejected string) (string, error)
}

// Provider implements Source. Safe for concurrent use; refreshes are serialized.
type Provider struct {
	mu     sync.Mutex
	cfg    Config
	oauth  *oauth2.Config
	cached *core.Credential
	now    func() time.Time
}

// New validates the configuration and builds a Provider.
func New(cfg Config) (*Provider, error) {
	p := &Provider{cfg: cfg, now: time.Now}

	if p.cfg.SafetyMargin <= 0 {
		p.cfg.SafetyMargin = DefaultSafetyMargin
	}
	if p.cfg.TokenURL == "" {
		p.cfg.TokenURL = DefaultTokenURL
	}

	hasRefresh := cfg.RefreshToken != "" || cfg.ClientID != "" || cfg.ClientSecret != ""
	if hasRefresh && (cfg.RefreshToken == "" || cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, core.NewCredentialError("refresh token, app key and app secret must all be set", nil)
	}
	if !hasRefresh && cfg.AccessToken == "" {
		return nil, core.NewCredentialError("no storage credentials configured: set an access token or a refresh token with app key and secret", nil)
	}

	if hasRefresh {
		p.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  p.cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		if cfg.AccessToken != "" {
			// Expiry unknown: used for nothing until the first refresh replaces it.
			p.seed(core.Credential{AccessToken: cfg.AccessToken})
		}
	}

	return p, nil
}

// seed installs a credential ahead of the first exchange.
func (p *Provider) seed(cred core.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = &cred
}

// Refreshable reports whether the provider can exchange a refresh token.
func (p *Provider) Refreshable() bool {
	return p.oauth != nil
}

// Token returns a valid bearer token.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if p.oauth == nil {
		return p.cfg.AccessToken, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.valid(p.cached) {
		return p.cached.AccessToken, nil
	}
	return p.refreshLocked(ctx)
}

// ForceRefresh is called after the provider answered 401 for rejected.
// If another caller already replaced rejected with a valid token, that token is returned
// without a second exchange.
func (p *Provider) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	if p.oauth == nil {
		return "", core.NewUpstreamAuthError(serviceName, "access token rejected and no refresh token is configured", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.cached.AccessToken != rejected && p.valid(p.cached) {
		return p.cached.AccessToken, nil
	}
	p.cached = nil
	return p.refreshLocked(ctx)
}

// Expiry returns the expiry of the cached credential (zero if none).
func (p *Provider) Expiry() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return time.Time{}
	}
	return p.cached.Expiry
}

func (p *Provider) valid(cred *core.Credential) bool {
	if cred == nil || cred.AccessToken == "" || cred.Expiry.IsZero() {
		return false
	}
	return p.now().Before(cred.Expiry.Add(-p.cfg.SafetyMargin))
}

// refreshLocked performs the refresh-grant exchange. p.mu must be held.
func (p *Provider) refreshLocked(ctx context.Context) (string, error) {
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}

	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: p.cfg.RefreshToken})
	tok, err := src.Token()
	observability.ObserveTokenRefresh(err)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			msg := retrieveErr.ErrorDescription
			if msg == "" {
				msg = retrieveErr.ErrorCode
			}
			if msg == "" && retrieveErr.Response != nil {
				msg = retrieveErr.Response.Status
			}
			return "", core.NewUpstreamAuthError(serviceName, "refresh token exchange rejected: "+msg, err)
		}
		authErr := core.NewUpstreamAuthError(serviceName, fmt.Sprintf("refresh token exchange failed: %v", err), err)
		authErr.Retryable = true
		return "", authErr
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = p.now().Add(defaultTokenLifetime)
	}
	if tok.RefreshToken != "" && tok.RefreshToken != p.cfg.RefreshToken {
		p.cfg.RefreshToken = tok.RefreshToken
	}
	p.cached = &core.Credential{AccessToken: tok.AccessToken, Expiry: expiry}

	slog.Info("storage access token refreshed", "expires_at", expiry.UTC())
	return tok.AccessToken, nil
}

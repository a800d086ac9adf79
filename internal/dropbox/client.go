package dropbox

import (
	"context"

	"goportfolio/internal/pkg/apiclient"
)

const (
	// DefaultBaseURL is the Dropbox RPC endpoint root.
	DefaultBaseURL = "https://api.dropboxapi.com/2"

	// ServiceName labels errors raised by this package's API calls.
	ServiceName = "dropbox"

	// defaultPageLimit is the page size requested from list_folder.
	defaultPageLimit = 2000
)

// Client wraps the Dropbox endpoints the service needs.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a Dropbox client on top of an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// ListFolder returns the first page of a folder listing.
func (c *Client) ListFolder(ctx context.Context, path string, recursive bool) (*ListFolderResult, error) {
	var resp listFolderResponse
	err := c.api.Do(ctx, apiclient.Request{
		Endpoint: "/files/list_folder",
		Body: map[string]any{
			"path":                    normalizeRoot(path),
			"recursive":               recursive,
			"include_deleted":         false,
			"include_mounted_folders": true,
			"limit":                   defaultPageLimit,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// ListFolderContinue fetches the page after cursor.
func (c *Client) ListFolderContinue(ctx context.Context, cursor string) (*ListFolderResult, error) {
	var resp listFolderResponse
	err := c.api.Do(ctx, apiclient.Request{
		Endpoint: "/files/list_folder/continue",
		Body:     map[string]string{"cursor": cursor},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// GetTemporaryLink resolves a single path.
func (c *Client) GetTemporaryLink(ctx context.Context, path string) (string, error) {
	var resp struct {
		Link string `json:"link"`
	}
	err := c.api.Do(ctx, apiclient.Request{
		Endpoint: "/files/get_temporary_link",
		Body:     map[string]string{"path": path},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Link, nil
}

// GetTemporaryLinkBatch resolves several paths in one call. Results are in
// request order.
func (c *Client) GetTemporaryLinkBatch(ctx context.Context, paths []string) ([]LinkResult, error) {
	type pathArg struct {
		Path string `json:"path"`
	}
	args := make([]pathArg, len(paths))
	for i, p := range paths {
		args[i] = pathArg{Path: p}
	}

	var resp struct {
		Entries []taggedLink `json:"entries"`
	}
	err := c.api.Do(ctx, apiclient.Request{
		Endpoint: "/files/get_temporary_link_batch",
		Body:     map[string]any{"entries": args},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]LinkResult, len(resp.Entries))
	for i, e := range resp.Entries {
		out[i] = e.Result
	}
	return out, nil
}

// CurrentAccount returns the account owning the token.
func (c *Client) CurrentAccount(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.api.Do(ctx, apiclient.Request{Endpoint: "/users/get_current_account"}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Calls returns the number of API round trips made so far.
func (c *Client) Calls() int64 {
	return c.api.Calls()
}

// CircuitState reports the upstream circuit breaker state.
func (c *Client) CircuitState() string {
	return c.api.CircuitState()
}

// normalizeRoot maps "/" to the empty string Dropbox uses for the root folder.
func normalizeRoot(path string) string {
	if path == "/" {
		return ""
	}
	return path
}

package dropbox

import (
	"context"

	"goportfolio/internal/core"
)

// FetchResult is a scanned folder with its links resolved.
type FetchResult struct {
	Assets  []core.ImageAsset
	Listing *Listing
	// Unresolved is the number of listed images without a link.
	Unresolved int
}

// Fetcher combines a Lister and a Resolver into one folder-to-assets step.
type Fetcher struct {
	lister   *Lister
	resolver *Resolver
}

// NewFetcher creates a Fetcher.
func NewFetcher(lister *Lister, resolver *Resolver) *Fetcher {
	return &Fetcher{lister: lister, resolver: resolver}
}

// NewFetcherFromClient wires a Lister and a Resolver onto one Client.
func NewFetcherFromClient(c *Client, recursive bool, linkConcurrency int) *Fetcher {
	return NewFetcher(NewLister(c, recursive), NewResolver(c, linkConcurrency))
}

// Fetch lists folder and resolves links for every image found. The listing
// error is returned alongside whatever was listed so callers can decide
// whether a partial result is usable.
func (f *Fetcher) Fetch(ctx context.Context, folder string) (*FetchResult, error) {
	listing, err := f.lister.ListImages(ctx, folder)
	result := &FetchResult{Listing: listing}
	if listing == nil || len(listing.Files) == 0 {
		return result, err
	}

	paths := make([]string, len(listing.Files))
	for i, file := range listing.Files {
		paths[i] = file.Path
	}
	links := f.resolver.ResolveLinks(ctx, paths)

	urls := make(map[string]string, len(links))
	for _, link := range links {
		urls[link.Path] = link.URL
	}

	result.Assets = make([]core.ImageAsset, 0, len(links))
	for _, file := range listing.Files {
		if url, ok := urls[file.Path]; ok && url != "" {
			result.Assets = append(result.Assets, file.Asset(url))
		}
	}
	result.Unresolved = len(listing.Files) - len(result.Assets)

	return result, err
}

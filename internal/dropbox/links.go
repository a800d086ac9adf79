package dropbox

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"goportfolio/internal/core"
	"goportfolio/internal/observability"
)

const (
	// MaxBatchSize is the provider's ceiling for one batch link call.
	MaxBatchSize = 25

	defaultBatchConcurrency = 4
)

// linkAPI is the link subset of Client.
type linkAPI interface {
	GetTemporaryLink(ctx context.Context, path string) (string, error)
	GetTemporaryLinkBatch(ctx context.Context, paths []string) ([]LinkResult, error)
}

// Resolver converts file paths into temporary links.
type Resolver struct {
	api         linkAPI
	batchSize   int
	concurrency int
}

// NewResolver creates a Resolver that batches up to MaxBatchSize paths per call
// and runs at most concurrency batches at once (<= 0 uses the default).
func NewResolver(api linkAPI, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &Resolver{api: api, batchSize: MaxBatchSize, concurrency: concurrency}
}

// ResolveLinks returns a link for every path that could be resolved, in input order.
// Failures are logged and the path is left out; it never fails as a whole.
func (r *Resolver) ResolveLinks(ctx context.Context, paths []string) []ResolvedLink {
	if len(paths) == 0 {
		return nil
	}

	chunks := chunk(paths, r.batchSize)
	results := make([][]ResolvedLink, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			results[i] = r.resolveChunk(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var out []ResolvedLink
	for _, res := range results {
		out = append(out, res...)
	}
	return out
}

func (r *Resolver) resolveChunk(ctx context.Context, paths []string) []ResolvedLink {
	entries, err := r.api.GetTemporaryLinkBatch(ctx, paths)
	if err == nil && len(entries) != len(paths) {
		err = core.NewUpstreamError(ServiceName, http.StatusBadGateway, "batch link response does not match request size", false, nil)
	}
	if err != nil {
		slog.Warn("batch link resolution failed, resolving individually",
			"paths", len(paths),
			"error", err,
		)
		return r.resolveEach(ctx, paths)
	}

	out := make([]ResolvedLink, 0, len(paths))
	for i, entry := range entries {
		switch e := entry.(type) {
		case LinkSuccess:
			out = append(out, ResolvedLink{Path: paths[i], URL: e.Link})
		case LinkFailure:
			r.logFailure(paths[i], core.NewUpstreamLinkError(paths[i], errors.New(e.Reason)))
		}
	}
	return out
}

func (r *Resolver) resolveEach(ctx context.Context, paths []string) []ResolvedLink {
	out := make([]ResolvedLink, 0, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			r.logFailure(p, core.NewUpstreamLinkError(p, ctx.Err()))
			continue
		}
		link, err := r.api.GetTemporaryLink(ctx, p)
		if err != nil {
			r.logFailure(p, core.NewUpstreamLinkError(p, err))
			continue
		}
		out = append(out, ResolvedLink{Path: p, URL: link})
	}
	return out
}

func (r *Resolver) logFailure(path string, err error) {
	observability.ObserveScanError("link")
	slog.Error("temporary link resolution failed", "path", path, "error", err)
}

// chunk splits paths into consecutive groups of at most size.
func chunk(paths []string, size int) [][]string {
	chunks := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		chunks = append(chunks, paths[start:end])
	}
	return chunks
}

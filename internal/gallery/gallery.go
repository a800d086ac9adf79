package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"goportfolio/internal/cache"
	"goportfolio/internal/core"
)

// BucketSpec names a folder to serve.
type BucketSpec struct {
	Name   string
	Folder string
}

// BucketStatus is a point-in-time summary of one bucket.
type BucketStatus struct {
	Name      string    `json:"name"`
	Folder    string    `json:"folder"`
	Count     int       `json:"count"`
	LastFetch time.Time `json:"lastFetch"`
}

// Gallery owns every bucket and coordinates their refreshes.
type Gallery struct {
	buckets map[string]*Bucket
	order   []string
	store   cache.Store

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gallery serving specs. Bucket names must be unique and non-empty.
func New(fetcher Fetcher, store cache.Store, policy Policy, specs ...BucketSpec) (*Gallery, error) {
	if fetcher == nil {
		return nil, errors.New("gallery: fetcher is required")
	}
	if store == nil {
		store = cache.NoneStore{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gallery{
		buckets: make(map[string]*Bucket, len(specs)),
		store:   store,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, spec := range specs {
		if spec.Name == "" || spec.Folder == "" {
			cancel()
			return nil, fmt.Errorf("gallery: bucket %q needs a name and a folder", spec.Name)
		}
		if _, dup := g.buckets[spec.Name]; dup {
			cancel()
			return nil, fmt.Errorf("gallery: duplicate bucket %q", spec.Name)
		}
		g.buckets[spec.Name] = NewBucket(spec.Name, spec.Folder, fetcher, store, policy)
		g.order = append(g.order, spec.Name)
	}
	return g, nil
}

// Bucket returns the named bucket.
func (g *Gallery) Bucket(name string) (*Bucket, bool) {
	b, ok := g.buckets[name]
	return b, ok
}

// Names returns bucket names in configuration order.
func (g *Gallery) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// StoreType returns the durable store backend name.
func (g *Gallery) StoreType() string {
	return g.store.Type()
}

// Status summarizes every bucket.
func (g *Gallery) Status() []BucketStatus {
	out := make([]BucketStatus, 0, len(g.order))
	for _, name := range g.order {
		b := g.buckets[name]
		out = append(out, BucketStatus{
			Name:      name,
			Folder:    b.Folder(),
			Count:     len(b.Get()),
			LastFetch: b.LastFetch(),
		})
	}
	return out
}

// Ensure makes the named buckets servable and returns their snapshots in the
// order requested. Fresh buckets are returned as-is; stale ones are returned and
// revalidated in the background; expired or empty ones are refreshed before
// returning. Buckets are handled concurrently.
func (g *Gallery) Ensure(ctx context.Context, names ...string) ([]*core.BucketSnapshot, error) {
	return g.each(ctx, names, g.ensureOne)
}

// Refresh forces a refresh of the named buckets, or of all buckets when none are named.
func (g *Gallery) Refresh(ctx context.Context, names ...string) ([]*core.BucketSnapshot, error) {
	if len(names) == 0 {
		names = g.order
	}
	return g.each(ctx, names, func(ctx context.Context, b *Bucket) (*core.BucketSnapshot, error) {
		return g.refresh(ctx, b, TriggerForced)
	})
}

// RefreshAsync refreshes the named buckets (all when none are named) under the
// gallery context. The channel receives the combined result and is closed.
func (g *Gallery) RefreshAsync(trigger string, names ...string) <-chan error {
	if len(names) == 0 {
		names = g.order
	}
	done := make(chan error, 1)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(done)
		_, err := g.each(g.ctx, names, func(ctx context.Context, b *Bucket) (*core.BucketSnapshot, error) {
			return g.refresh(ctx, b, trigger)
		})
		if err != nil && g.ctx.Err() == nil {
			slog.Error("background refresh failed", "trigger", trigger, "error", err)
		}
		done <- err
	}()
	return done
}

// LoadStored installs durable snapshots into every bucket that has not loaded one yet.
func (g *Gallery) LoadStored(ctx context.Context) int {
	loaded := 0
	for _, name := range g.order {
		if g.buckets[name].LoadStored(ctx) {
			loaded++
		}
	}
	return loaded
}

// StartBackgroundRefresh refreshes every bucket on interval until the returned
// function is called or the gallery is closed. A non-positive interval is a no-op.
func (g *Gallery) StartBackgroundRefresh(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(g.ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case <-g.RefreshAsync(TriggerScheduled):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return cancel
}

// Close cancels background refreshes and waits for them to return.
// The store is owned by the caller.
func (g *Gallery) Close() {
	g.cancel()
	g.wg.Wait()
}

func (g *Gallery) each(ctx context.Context, names []string, fn func(context.Context, *Bucket) (*core.BucketSnapshot, error)) ([]*core.BucketSnapshot, error) {
	buckets := make([]*Bucket, len(names))
	for i, name := range names {
		b, ok := g.buckets[name]
		if !ok {
			return nil, core.NewNotFoundError(fmt.Sprintf("unknown bucket %q", name))
		}
		buckets[i] = b
	}

	out := make([]*core.BucketSnapshot, len(buckets))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, b := range buckets {
		eg.Go(func() error {
			snap, err := fn(egCtx, b)
			if err != nil {
				return err
			}
			out[i] = snap
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gallery) ensureOne(ctx context.Context, b *Bucket) (*core.BucketSnapshot, error) {
	b.LoadStored(ctx)

	if b.NeedsRefresh() {
		snap, err := g.refresh(ctx, b, TriggerRequest)
		if err == nil {
			return snap, nil
		}
		if b.servable() {
			slog.Warn("refresh failed, serving previous snapshot", "bucket", b.Name(), "error", err)
			return b.Snapshot(), nil
		}
		return nil, err
	}

	if b.IsStale() {
		g.revalidate(b)
	}
	return b.Snapshot(), nil
}

// revalidate refreshes b in the background. Failures leave the current snapshot.
func (g *Gallery) revalidate(b *Bucket) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if _, err := g.refresh(g.ctx, b, TriggerStale); err != nil && g.ctx.Err() == nil {
			slog.Warn("background revalidation failed", "bucket", b.Name(), "error", err)
		}
	}()
}

// refresh runs one refresh per bucket at a time; concurrent callers share its
// result. The fetch runs under the gallery context so a caller that gives up
// does not cancel it for the others.
func (g *Gallery) refresh(ctx context.Context, b *Bucket, trigger string) (*core.BucketSnapshot, error) {
	ch := g.group.DoChan(b.Name(), func() (any, error) {
		return b.refresh(g.ctx, trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.BucketSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Package gallery keeps named image buckets fresh and backs them with a durable snapshot store.
package gallery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"goportfolio/internal/cache"
	"goportfolio/internal/core"
	"goportfolio/internal/dropbox"
	"goportfolio/internal/observability"
)

// Fetcher turns a remote folder into resolved image assets.
// A non-nil error may accompany a partial result.
type Fetcher interface {
	Fetch(ctx context.Context, folder string) (*dropbox.FetchResult, error)
}

// Refresh triggers, used as the metrics label.
const (
	TriggerRequest   = "request"
	TriggerStale     = "stale"
	TriggerForced    = "forced"
	TriggerScheduled = "scheduled"
	TriggerStartup   = "startup"
)

var errNothingResolved = errors.New("images were listed but no temporary link could be resolved")

// Policy holds the freshness settings shared by every bucket.
type Policy struct {
	// Timeout is the age after which a bucket must be refreshed before serving.
	Timeout time.Duration
	// StaleAfter is the age after which a bucket is served and revalidated in the background.
	StaleAfter time.Duration
	// SnapshotTTL is how long persisted snapshots live in the durable store.
	SnapshotTTL time.Duration
	// LinkTTL bounds how old a snapshot may be and still be served after a failed refresh.
	LinkTTL time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     time.Hour,
		StaleAfter:  30 * time.Minute,
		SnapshotTTL: 4 * time.Hour,
		LinkTTL:     4 * time.Hour,
	}
}

// Bucket is one named folder of images and its current snapshot.
type Bucket struct {
	name    string
	folder  string
	key     string
	fetcher Fetcher
	store   cache.Store
	policy  Policy
	now     func() time.Time

	mu        sync.RWMutex
	snap      *core.BucketSnapshot
	lastFetch time.Time
	lastScan  *dropbox.FetchResult

	loadMu sync.Mutex
	loaded bool
}

// StoreKey is the durable store key of a bucket. It includes the folder so a
// reconfigured bucket never loads the snapshot of its previous folder.
func StoreKey(name, folder string) string {
	return name + ":" + folder
}

// NewBucket creates an empty bucket for folder.
func NewBucket(name, folder string, fetcher Fetcher, store cache.Store, policy Policy) *Bucket {
	if store == nil {
		store = cache.NoneStore{}
	}
	return &Bucket{
		name:    name,
		folder:  folder,
		key:     StoreKey(name, folder),
		fetcher: fetcher,
		store:   store,
		policy:  policy,
		now:     time.Now,
	}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Folder returns the remote folder path.
func (b *Bucket) Folder() string { return b.folder }

// Snapshot returns the current snapshot, or nil if nothing was ever loaded.
func (b *Bucket) Snapshot() *core.BucketSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Get returns the current assets. The slice is shared and must not be modified.
func (b *Bucket) Get() []core.ImageAsset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap == nil {
		return nil
	}
	return b.snap.Assets
}

// LastFetch returns when the current contents were fetched. Zero means never.
func (b *Bucket) LastFetch() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastFetch
}

// LastScan returns the diagnostics of the most recent fetch attempt.
func (b *Bucket) LastScan() *dropbox.FetchResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastScan
}

// NeedsRefresh reports whether the bucket was never fetched, is older than the
// timeout, or holds no assets.
func (b *Bucket) NeedsRefresh() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.needsRefreshLocked()
}

func (b *Bucket) needsRefreshLocked() bool {
	if b.lastFetch.IsZero() || b.snap == nil || len(b.snap.Assets) == 0 {
		return true
	}
	return b.now().Sub(b.lastFetch) > b.policy.Timeout
}

// IsStale reports whether the bucket is still servable but due for revalidation.
func (b *Bucket) IsStale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.needsRefreshLocked() || b.policy.StaleAfter <= 0 {
		return false
	}
	return b.now().Sub(b.lastFetch) > b.policy.StaleAfter
}

// servable reports whether the current assets may be served after a failed
// refresh, i.e. their links have not expired.
func (b *Bucket) servable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap == nil || len(b.snap.Assets) == 0 {
		return false
	}
	return b.policy.LinkTTL <= 0 || b.now().Sub(b.lastFetch) < b.policy.LinkTTL
}

// Refresh fetches the folder and replaces the bucket contents.
func (b *Bucket) Refresh(ctx context.Context) (*core.BucketSnapshot, error) {
	return b.refresh(ctx, TriggerForced)
}

func (b *Bucket) refresh(ctx context.Context, trigger string) (*core.BucketSnapshot, error) {
	start := time.Now()
	snap, err := b.fetchAndReplace(ctx)
	assets := 0
	if snap != nil {
		assets = len(snap.Assets)
	}
	observability.ObserveBucketRefresh(b.name, trigger, assets, time.Since(start), err)
	return snap, err
}

func (b *Bucket) fetchAndReplace(ctx context.Context) (*core.BucketSnapshot, error) {
	result, err := b.fetcher.Fetch(ctx, b.folder)
	if result != nil {
		b.mu.Lock()
		b.lastScan = result
		b.mu.Unlock()
	}

	var assets []core.ImageAsset
	listed := 0
	if result != nil {
		assets = result.Assets
		if result.Listing != nil {
			listed = len(result.Listing.Files)
		}
	}

	if len(assets) == 0 && (err != nil || listed > 0) {
		if err == nil {
			err = errNothingResolved
		}
		if restored := b.restore(ctx); restored != nil {
			slog.Warn("refresh failed, serving stored snapshot",
				"bucket", b.name, "error", err, "count", len(restored.Assets))
			return restored, nil
		}
		return nil, core.NewAggregateFetchError(b.name, err)
	}

	if err != nil {
		slog.Warn("partial refresh", "bucket", b.name, "folder", b.folder, "error", err, "count", len(assets))
	}

	now := b.now()
	snap := core.NewBucketSnapshot(b.name, assets, now)
	b.install(snap, now)

	if len(assets) > 0 {
		if perr := b.store.Set(ctx, b.key, snap, b.policy.SnapshotTTL); perr != nil {
			slog.Warn("failed to persist snapshot", "bucket", b.name, "store", b.store.Type(), "error", perr)
		}
	}

	slog.Info("bucket refreshed", "bucket", b.name, "folder", b.folder, "count", len(assets))
	return snap, nil
}

// restore installs the durable snapshot if it has assets.
func (b *Bucket) restore(ctx context.Context) *core.BucketSnapshot {
	stored, err := b.store.Get(ctx, b.key)
	if err != nil {
		slog.Warn("failed to read stored snapshot", "bucket", b.name, "store", b.store.Type(), "error", err)
		return nil
	}
	if stored == nil || len(stored.Assets) == 0 {
		return nil
	}
	if last := b.LastFetch(); !last.IsZero() && stored.FetchedAt.Before(last) {
		return nil
	}
	b.install(stored, stored.FetchedAt)
	return stored
}

// LoadStored installs the durable snapshot on first use when it is newer than
// the current contents. It reports whether a snapshot was installed.
func (b *Bucket) LoadStored(ctx context.Context) bool {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()
	if b.loaded {
		return false
	}

	stored, err := b.store.Get(ctx, b.key)
	if err != nil && ctx.Err() != nil {
		return false
	}
	// One attempt per process: an unavailable store is not retried on every request.
	b.loaded = true
	if err != nil {
		slog.Warn("failed to read stored snapshot", "bucket", b.name, "store", b.store.Type(), "error", err)
		return false
	}
	if stored == nil || len(stored.Assets) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.lastFetch.IsZero() && !stored.FetchedAt.After(b.lastFetch) {
		return false
	}
	b.snap = stored
	b.lastFetch = stored.FetchedAt
	observability.SetBucketAssets(b.name, len(stored.Assets))
	slog.Info("loaded stored snapshot", "bucket", b.name, "count", len(stored.Assets), "fetched_at", stored.FetchedAt)
	return true
}

func (b *Bucket) install(snap *core.BucketSnapshot, fetchedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = snap
	b.lastFetch = fetchedAt
}

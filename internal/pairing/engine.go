package pairing

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"goportfolio/internal/core"
)

// Mode selects the pairing policy.
type Mode string

const (
	// ModeCycle serves every pair of a shuffled queue before reshuffling.
	ModeCycle Mode = "cycle"
	// ModeRecency draws independently per bucket, avoiding recent picks.
	ModeRecency Mode = "recency"
)

// ParseMode validates a configured mode name. Empty means ModeCycle.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCycle:
		return ModeCycle, nil
	case ModeRecency:
		return ModeRecency, nil
	default:
		return "", fmt.Errorf("unknown pairing mode %q (valid: cycle, recency)", s)
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithShuffler replaces the random shuffle used to build queues.
func WithShuffler(s Shuffler) Option {
	return func(e *Engine) { e.shuffle = s }
}

// WithIntN replaces the random source used in recency mode.
func WithIntN(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

// Engine produces pairs from a base and an overlay bucket.
// It is safe for concurrent use; each call to Next is a critical section.
type Engine struct {
	mu      sync.Mutex
	mode    Mode
	shuffle Shuffler
	intn    func(n int) int

	queue         []core.Pair
	cursor        int
	basePaths     uint64
	overlayPaths  uint64
	baseDigest    uint64
	overlayDigest uint64

	windows map[string]*RecencyWindow
}

// NewEngine creates an engine for mode.
func NewEngine(mode Mode, opts ...Option) *Engine {
	e := &Engine{
		mode:    mode,
		shuffle: defaultShuffle,
		intn:    rand.IntN,
		windows: make(map[string]*RecencyWindow),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the active policy.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Next returns the next pair. It fails with an empty bucket error when either
// snapshot has no assets; callers refresh the cache before retrying.
func (e *Engine) Next(base, overlay *core.BucketSnapshot) (core.Pair, error) {
	if err := checkNotEmpty(base, "base"); err != nil {
		return core.Pair{}, err
	}
	if err := checkNotEmpty(overlay, "overlay"); err != nil {
		return core.Pair{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeRecency {
		return core.Pair{
			Base:    e.window(base.Name).Pick(base.Assets, e.intn),
			Overlay: e.window(overlay.Name).Pick(overlay.Assets, e.intn),
		}, nil
	}

	switch {
	case e.cursor >= len(e.queue) || base.PathDigest != e.basePaths || overlay.PathDigest != e.overlayPaths:
		e.queue = buildPairs(base.Assets, overlay.Assets, e.shuffle)
		e.cursor = 0
		e.basePaths, e.overlayPaths = base.PathDigest, overlay.PathDigest
	case base.Digest != e.baseDigest || overlay.Digest != e.overlayDigest:
		// Same images behind new links: keep the cycle, serve the fresh URLs.
		relink(e.queue[e.cursor:], base.Assets, overlay.Assets)
	}
	e.baseDigest, e.overlayDigest = base.Digest, overlay.Digest

	pair := e.queue[e.cursor]
	e.cursor++
	return pair, nil
}

func (e *Engine) window(bucket string) *RecencyWindow {
	w, ok := e.windows[bucket]
	if !ok {
		w = &RecencyWindow{}
		e.windows[bucket] = w
	}
	return w
}

func checkNotEmpty(snap *core.BucketSnapshot, fallback string) error {
	if snap != nil && len(snap.Assets) > 0 {
		return nil
	}
	name := fallback
	if snap != nil && snap.Name != "" {
		name = snap.Name
	}
	return core.NewEmptyBucketError(name)
}

package pairing

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goportfolio/internal/core"
)

func identityShuffle(int, func(i, j int)) {}

func assets(prefix string, n int) []core.ImageAsset {
	out := make([]core.ImageAsset, n)
	for i := range n {
		p := fmt.Sprintf("/%s/%d.jpg", prefix, i)
		out[i] = core.ImageAsset{Name: fmt.Sprintf("%d.jpg", i), Path: p, URL: "https://dl.example" + p}
	}
	return out
}

func snapshot(name string, n int) *core.BucketSnapshot {
	return core.NewBucketSnapshot(name, assets(name, n), time.Now())
}

// relinked returns a snapshot of the same n paths with reissued URLs.
func relinked(name string, n, generation int) *core.BucketSnapshot {
	out := assets(name, n)
	for i := range out {
		out[i].URL = fmt.Sprintf("%s?gen=%d", out[i].URL, generation)
	}
	return core.NewBucketSnapshot(name, out, time.Now())
}

func queuePosition(e *Engine) (cursor, length int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor, len(e.queue)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCycle, false},
		{"cycle", ModeCycle, false},
		{"recency", ModeRecency, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPairs_CyclesShorterBucket(t *testing.T) {
	pairs := buildPairs(assets("base", 5), assets("overlay", 3), identityShuffle)
	require.Len(t, pairs, 5)

	wantOverlay := []int{0, 1, 2, 0, 1}
	for i, p := range pairs {
		assert.Equal(t, fmt.Sprintf("/base/%d.jpg", i), p.Base.Path)
		assert.Equal(t, fmt.Sprintf("/overlay/%d.jpg", wantOverlay[i]), p.Overlay.Path)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, 5, p.QueueLength)
	}
}

func TestBuildPairs_CoversEveryAsset(t *testing.T) {
	sizes := [][2]int{{1, 1}, {1, 7}, {7, 1}, {4, 9}, {12, 5}, {20, 20}}
	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%dx%d", sz[0], sz[1]), func(t *testing.T) {
			base, overlay := assets("base", sz[0]), assets("overlay", sz[1])
			pairs := buildPairs(base, overlay, defaultShuffle)
			require.Len(t, pairs, max(sz[0], sz[1]))

			seenBase := map[string]bool{}
			seenOverlay := map[string]bool{}
			for _, p := range pairs {
				seenBase[p.Base.Path] = true
				seenOverlay[p.Overlay.Path] = true
			}
			assert.Len(t, seenBase, sz[0])
			assert.Len(t, seenOverlay, sz[1])
		})
	}
}

func TestBuildPairs_DoesNotMutateInput(t *testing.T) {
	base := assets("base", 6)
	reverse := func(n int, swap func(i, j int)) {
		for i := range n / 2 {
			swap(i, n-1-i)
		}
	}
	_ = buildPairs(base, assets("overlay", 2), reverse)
	assert.Equal(t, "/base/0.jpg", base[0].Path)
}

func TestEngine_CycleServesWholeQueueThenRegenerates(t *testing.T) {
	shuffles := 0
	counting := func(n int, swap func(i, j int)) { shuffles++ }
	e := NewEngine(ModeCycle, WithShuffler(counting))
	base, overlay := snapshot("base", 4), snapshot("overlay", 2)

	for i := range 4 {
		p, err := e.Next(base, overlay)
		require.NoError(t, err)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, 4, p.QueueLength)
	}
	assert.Equal(t, 2, shuffles, "one shuffle per bucket for the first generation")

	p, err := e.Next(base, overlay)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, 4, shuffles)

	cursor, length := queuePosition(e)
	assert.Equal(t, 1, cursor)
	assert.Equal(t, 4, length)
}

func TestEngine_RegeneratesWhenPathsChange(t *testing.T) {
	e := NewEngine(ModeCycle, WithShuffler(identityShuffle))
	base, overlay := snapshot("base", 3), snapshot("overlay", 3)

	_, err := e.Next(base, overlay)
	require.NoError(t, err)
	_, err = e.Next(base, overlay)
	require.NoError(t, err)

	refreshed := snapshot("overlay", 6)
	p, err := e.Next(base, refreshed)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, 6, p.QueueLength)
}

func TestEngine_NewLinksKeepTheCycle(t *testing.T) {
	shuffles := 0
	counting := func(n int, swap func(i, j int)) { shuffles++ }
	e := NewEngine(ModeCycle, WithShuffler(counting))
	base, overlay := snapshot("base", 3), snapshot("overlay", 3)

	_, err := e.Next(base, overlay)
	require.NoError(t, err)

	p, err := e.Next(relinked("base", 3, 1), relinked("overlay", 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index, "cursor survives a link refresh")
	assert.Equal(t, 2, shuffles, "no reshuffle")
	assert.Equal(t, "https://dl.example/base/1.jpg?gen=1", p.Base.URL)
	assert.Equal(t, "https://dl.example/overlay/1.jpg?gen=1", p.Overlay.URL)
}

func TestEngine_CycleCompletesAcrossLinkRefreshes(t *testing.T) {
	e := NewEngine(ModeCycle)
	served := map[string]int{}

	for i := range 10 {
		// links are reissued for the same paths every three pairs
		gen := i / 3
		p, err := e.Next(relinked("base", 10, gen), relinked("overlay", 3, gen))
		require.NoError(t, err)
		assert.Equal(t, i, p.Index)
		assert.Truef(t, strings.HasSuffix(p.Base.URL, fmt.Sprintf("?gen=%d", gen)), "stale link %s", p.Base.URL)
		served[p.Base.Path]++
	}

	assert.Len(t, served, 10, "every base image once per cycle")
	for path, n := range served {
		assert.Equal(t, 1, n, path)
	}
}

func TestEngine_EmptyBucket(t *testing.T) {
	e := NewEngine(ModeCycle)

	_, err := e.Next(snapshot("base", 3), core.NewBucketSnapshot("overlay", nil, time.Now()))
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrorTypeEmptyBucket))
	assert.Contains(t, err.Error(), "overlay")

	_, err = e.Next(nil, snapshot("overlay", 1))
	assert.True(t, core.IsType(err, core.ErrorTypeEmptyBucket))
	assert.Contains(t, err.Error(), "base")
}

func TestEngine_SingleAssetBuckets(t *testing.T) {
	e := NewEngine(ModeCycle)
	base, overlay := snapshot("base", 1), snapshot("overlay", 1)
	for range 3 {
		p, err := e.Next(base, overlay)
		require.NoError(t, err)
		assert.Equal(t, "/base/0.jpg", p.Base.Path)
		assert.Equal(t, 1, p.QueueLength)
	}
}

func TestEngine_ConcurrentNextIsSerialized(t *testing.T) {
	e := NewEngine(ModeCycle)
	base, overlay := snapshot("base", 50), snapshot("overlay", 10)

	var mu sync.Mutex
	indexes := map[int]int{}
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.Next(base, overlay)
			assert.NoError(t, err)
			mu.Lock()
			indexes[p.Index]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, indexes, 50, "each queue position is served once")
}

func TestEngine_RecencyMode(t *testing.T) {
	e := NewEngine(ModeRecency)
	base, overlay := snapshot("base", 10), snapshot("overlay", 4)

	var bases []string
	for range 40 {
		p, err := e.Next(base, overlay)
		require.NoError(t, err)
		assert.Zero(t, p.QueueLength)
		bases = append(bases, p.Base.Path)
	}

	// window of 5 means any six consecutive draws are distinct
	for i := 0; i+6 <= len(bases); i++ {
		seen := map[string]bool{}
		for _, b := range bases[i : i+6] {
			assert.False(t, seen[b], "repeat within window at %d", i)
			seen[b] = true
		}
	}
}

// Package pairing selects base/overlay image pairs without immediate repeats.
package pairing

import (
	"math/rand/v2"
	"slices"

	"goportfolio/internal/core"
)

// Shuffler permutes n elements in place through swap.
// rand.Shuffle is the default; tests inject deterministic orders.
type Shuffler func(n int, swap func(i, j int))

// buildPairs shuffles both buckets independently and pairs position i of each,
// cycling the shorter bucket, for max(len(base), len(overlay)) pairs.
// Every asset of both buckets appears at least once.
func buildPairs(base, overlay []core.ImageAsset, shuffle Shuffler) []core.Pair {
	if len(base) == 0 || len(overlay) == 0 {
		return nil
	}

	b := slices.Clone(base)
	o := slices.Clone(overlay)
	shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })
	shuffle(len(o), func(i, j int) { o[i], o[j] = o[j], o[i] })

	n := max(len(b), len(o))
	pairs := make([]core.Pair, n)
	for i := range n {
		pairs[i] = core.Pair{
			Base:        b[i%len(b)],
			Overlay:     o[i%len(o)],
			Index:       i,
			QueueLength: n,
		}
	}
	return pairs
}

// relink replaces the assets in pairs with the versions in base and overlay
// that share their path, keeping queue order. Paths missing from the current
// assets are left untouched.
func relink(pairs []core.Pair, base, overlay []core.ImageAsset) {
	b := byPath(base)
	o := byPath(overlay)
	for i := range pairs {
		if a, ok := b[pairs[i].Base.Path]; ok {
			pairs[i].Base = a
		}
		if a, ok := o[pairs[i].Overlay.Path]; ok {
			pairs[i].Overlay = a
		}
	}
}

func byPath(assets []core.ImageAsset) map[string]core.ImageAsset {
	m := make(map[string]core.ImageAsset, len(assets))
	for _, a := range assets {
		m[a.Path] = a
	}
	return m
}

func defaultShuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

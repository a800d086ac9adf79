package pairing

import (
	"slices"

	"goportfolio/internal/core"
)

const (
	maxWindow        = 10
	windowFraction   = 0.5
	starvationRatio  = 0.2
	starvationRetain = 2
)

// RecencyWindow remembers the paths most recently drawn from one bucket.
type RecencyWindow struct {
	recent []string
}

// windowSize is min(10, floor(n * 0.5)).
func windowSize(n int) int {
	return min(maxWindow, int(float64(n)*windowFraction))
}

// Pick draws one asset not in the window. When fewer than 20% of the assets are
// eligible the window is cut to its last two entries first. intn returns a
// uniform value in [0, n).
func (w *RecencyWindow) Pick(assets []core.ImageAsset, intn func(n int) int) core.ImageAsset {
	eligible := w.eligible(assets)
	if float64(len(eligible)) < starvationRatio*float64(len(assets)) {
		if len(w.recent) > starvationRetain {
			w.recent = slices.Clone(w.recent[len(w.recent)-starvationRetain:])
		}
		eligible = w.eligible(assets)
	}
	if len(eligible) == 0 {
		eligible = assets
	}

	picked := eligible[intn(len(eligible))]
	w.remember(picked.Path, windowSize(len(assets)))
	return picked
}

// Recent returns a copy of the window, oldest first.
func (w *RecencyWindow) Recent() []string {
	return slices.Clone(w.recent)
}

func (w *RecencyWindow) eligible(assets []core.ImageAsset) []core.ImageAsset {
	if len(w.recent) == 0 {
		return assets
	}
	out := make([]core.ImageAsset, 0, len(assets))
	for _, a := range assets {
		if !slices.Contains(w.recent, a.Path) {
			out = append(out, a)
		}
	}
	return out
}

func (w *RecencyWindow) remember(path string, size int) {
	w.recent = append(w.recent, path)
	if over := len(w.recent) - size; over > 0 {
		w.recent = slices.Clone(w.recent[over:])
	}
}

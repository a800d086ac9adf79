package core

import (
	"encoding/binary"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ImageAsset is a resolved image ready to be served.
// Assets are immutable; a refresh supersedes them instead of mutating them.
type ImageAsset struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// FileRef is a listed remote file that has not been resolved to a link yet.
type FileRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Asset attaches a resolved URL to the file reference.
func (f FileRef) Asset(url string) ImageAsset {
	return ImageAsset{Name: f.Name, Path: f.Path, URL: url, Size: f.Size}
}

// imageExtensions is the allow-list of served file extensions.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// IsImageName reports whether name has an allowed image extension (case-insensitive).
func IsImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// BucketSnapshot is the wholesale-replaceable content of a bucket.
type BucketSnapshot struct {
	Name      string       `json:"name"`
	Assets    []ImageAsset `json:"assets"`
	FetchedAt time.Time    `json:"fetched_at"`
	Digest    uint64       `json:"digest"`

	// PathDigest covers the set of paths only; reissued links leave it unchanged.
	PathDigest uint64 `json:"-"`
}

// NewBucketSnapshot builds a snapshot and computes its digest.
func NewBucketSnapshot(name string, assets []ImageAsset, fetchedAt time.Time) *BucketSnapshot {
	return &BucketSnapshot{
		Name:       name,
		Assets:     assets,
		FetchedAt:  fetchedAt,
		Digest:     DigestAssets(assets),
		PathDigest: DigestPaths(assets),
	}
}

// DigestAssets hashes asset paths and URLs in order.
// Any refresh that issues new links yields a different digest.
func DigestAssets(assets []ImageAsset) uint64 {
	h := xxhash.New()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(assets)))
	_, _ = h.Write(n[:])
	for _, a := range assets {
		_, _ = h.WriteString(a.Path)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(a.URL)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// DigestPaths hashes the set of asset paths, independent of order and URLs.
func DigestPaths(assets []ImageAsset) uint64 {
	paths := make([]string, len(assets))
	for i, a := range assets {
		paths[i] = a.Path
	}
	slices.Sort(paths)

	h := xxhash.New()
	for _, p := range paths {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Credential is a bearer token and the instant it stops being valid.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// Pair is one base image composed with one overlay image.
type Pair struct {
	Base    ImageAsset `json:"baseImage"`
	Overlay ImageAsset `json:"overlayImage"`
	// Index is the position of the pair in the current queue generation
	Index int `json:"pairIndex"`
	// QueueLength is the size of the current queue generation (0 in recency mode)
	QueueLength int `json:"queueLength"`
}

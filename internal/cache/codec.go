package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"

	"goportfolio/internal/core"
)

// record is the stored form of a snapshot. ExpiresAt is kept in the payload so
// backends without native expiry (files, SQLite) can still honor the TTL.
type record struct {
	ExpiresAt time.Time            `json:"expires_at"`
	Snapshot  *core.BucketSnapshot `json:"snapshot"`
}

// noExpiry stands in for a non-positive TTL.
const noExpiry = 100 * 365 * 24 * time.Hour

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return noExpiry
	}
	return ttl
}

// errDigestMismatch reports a payload whose assets do not match its digest.
var errDigestMismatch = errors.New("snapshot digest mismatch")

// encodeRecord serializes and brotli-compresses a snapshot.
func encodeRecord(snap *core.BucketSnapshot, expiresAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(record{ExpiresAt: expiresAt.UTC(), Snapshot: snap})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeRecord reverses encodeRecord. It returns nil, nil for an expired record.
func decodeRecord(data []byte, now time.Time) (*core.BucketSnapshot, error) {
	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if rec.Snapshot == nil {
		return nil, fmt.Errorf("failed to parse snapshot: empty payload")
	}
	if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
		return nil, nil
	}
	if core.DigestAssets(rec.Snapshot.Assets) != rec.Snapshot.Digest {
		return nil, errDigestMismatch
	}
	rec.Snapshot.PathDigest = core.DigestPaths(rec.Snapshot.Assets)
	return rec.Snapshot, nil
}

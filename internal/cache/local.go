package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"goportfolio/internal/core"
)

// LocalStore implements Store with one file per key in a directory.
// This is suitable for single-instance deployments.
type LocalStore struct {
	mu  sync.RWMutex
	dir string
	now func() time.Time
}

// NewLocalStore creates a file-based store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir, now: time.Now}
}

func (s *LocalStore) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(s.dir, safe+".snap")
}

// Get reads the snapshot file for key.
func (s *LocalStore) Get(_ context.Context, key string) (*core.BucketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	return decodeRecord(data, s.now())
}

// Set writes the snapshot file for key atomically.
func (s *LocalStore) Set(_ context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	data, err := encodeRecord(snap, s.now().Add(ttl))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	target := s.path(key)
	tmpFile := target + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmpFile, target); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return nil
}

func (s *LocalStore) Type() string { return TypeLocal }

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}

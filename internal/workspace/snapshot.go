package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Strob0t/RefactorForge/internal/adapter/ristretto"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
)

// Snapshots reads files and captures (path, checksum, version) snapshots.
// Contents are cached keyed by path+mtime+size so repeated planner reads of
// an unchanged file hit memory; the watcher drops entries eagerly when the
// file changes underneath us.
type Snapshots struct {
	cache *ristretto.Cache

	versions map[string]uint64
	verMu    sync.Mutex
}

// NewSnapshots creates a snapshot store backed by the given cache. cache
// may be nil, which disables caching.
func NewSnapshots(cache *ristretto.Cache) *Snapshots {
	return &Snapshots{cache: cache, versions: make(map[string]uint64)}
}

// Read returns the file's content, consulting the cache first.
func (s *Snapshots) Read(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := cacheKey(path, fi.ModTime(), fi.Size())

	if s.cache != nil {
		if data, ok, _ := s.cache.Get(context.Background(), key); ok {
			return string(data), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		_ = s.cache.Set(context.Background(), key, data, 10*time.Minute)
	}
	return string(data), nil
}

// Capture reads the file and records a snapshot of it. The version counter
// is monotonic per path within this process.
func (s *Snapshots) Capture(path string) (refactor.FileSnapshot, string, error) {
	content, err := s.Read(path)
	if err != nil {
		return refactor.FileSnapshot{}, "", err
	}

	s.verMu.Lock()
	s.versions[path]++
	version := s.versions[path]
	s.verMu.Unlock()

	return refactor.FileSnapshot{
		Path:     path,
		Checksum: Checksum(content),
		Version:  version,
	}, content, nil
}

// Invalidate drops the cached entry for path's current mtime and size. Entries are keyed by
// mtime+size, so this is only needed when the watcher wants the next read
// to hit disk regardless.
func (s *Snapshots) Invalidate(path string) {
	// Keys embed mtime; stale entries expire via TTL. Nothing to do beyond
	// letting the keyed entry miss, but deleting the current key covers the
	// same-mtime rewrite case.
	if s.cache == nil {
		return
	}
	if fi, err := os.Stat(path); err == nil {
		_ = s.cache.Delete(context.Background(), cacheKey(path, fi.ModTime(), fi.Size()))
	}
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func cacheKey(path string, mtime time.Time, size int64) string {
	return fmt.Sprintf("%s|%d|%d", path, mtime.UnixNano(), size)
}

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Strob0t/RefactorForge/internal/adapter/ristretto"
)

func TestCaptureChecksumAndVersion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	writeFile(t, path, "content-1")

	snaps := NewSnapshots(nil)

	snap1, content, err := snaps.Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	if content != "content-1" {
		t.Errorf("content = %q", content)
	}
	if snap1.Checksum != Checksum("content-1") {
		t.Errorf("checksum mismatch")
	}
	if snap1.Version != 1 {
		t.Errorf("version = %d, want 1", snap1.Version)
	}

	snap2, _, err := snaps.Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	if snap2.Version != 2 {
		t.Errorf("version = %d, want 2 (monotonic per path)", snap2.Version)
	}
	if snap2.Checksum != snap1.Checksum {
		t.Errorf("checksum changed for identical content")
	}
}

func TestChecksumDetectsChange(t *testing.T) {
	if Checksum("a") == Checksum("b") {
		t.Fatal("distinct contents share a checksum")
	}
	if Checksum("a") != Checksum("a") {
		t.Fatal("checksum not deterministic")
	}
}

func TestReadWithCache(t *testing.T) {
	cache, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	writeFile(t, path, "cached")

	snaps := NewSnapshots(cache)

	got, err := snaps.Read(path)
	if err != nil || got != "cached" {
		t.Fatalf("Read = %q, %v", got, err)
	}

	// A rewrite changes mtime or size, so the stale entry cannot be served.
	writeFile(t, path, "rewritten-longer")
	got, err = snaps.Read(path)
	if err != nil || got != "rewritten-longer" {
		t.Fatalf("Read after rewrite = %q, %v", got, err)
	}
}

func TestReadMissingFile(t *testing.T) {
	snaps := NewSnapshots(nil)
	if _, err := snaps.Read(filepath.Join(t.TempDir(), "absent.ts")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

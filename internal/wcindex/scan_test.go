package wcindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/ignore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func findChange(changes []Change, path string) (Change, bool) {
	for _, c := range changes {
		if c.Path == path {
			return c, true
		}
	}
	return Change{}, false
}

func TestScan_UntrackedFile(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "new.txt"), "hi")

	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	c, ok := findChange(changes, "new.txt")
	if !ok || c.Status != StatusUntracked {
		t.Fatalf("expected new.txt untracked, got %+v (found=%v)", c, ok)
	}
}

func TestScan_UnchangedFileSkipsHashing(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "same.txt")
	writeFile(t, path, "stable")

	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hashing.Of([]byte("stable"))
	if err := RecordClean(idx, workDir, "same.txt", h); err != nil {
		t.Fatal(err)
	}

	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findChange(changes, "same.txt"); ok {
		t.Fatalf("expected no change reported for untouched file, got %+v", changes)
	}
}

func TestScan_ModifiedFile(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "mod.txt")
	writeFile(t, path, "before")

	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := RecordClean(idx, workDir, "mod.txt", hashing.Of([]byte("before"))); err != nil {
		t.Fatal(err)
	}

	// Force a different (size, mtime) pair so Scan re-hashes instead of
	// treating it as unchanged.
	writeFile(t, path, "after-longer")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	c, ok := findChange(changes, "mod.txt")
	if !ok || c.Status != StatusModified {
		t.Fatalf("expected mod.txt modified, got %+v (found=%v)", c, ok)
	}
}

func TestScan_RemovedFile(t *testing.T) {
	workDir := t.TempDir()
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Set("gone.txt", Entry{ContentHash: hashing.Of([]byte("x")), Size: 1, MtimeS: 1}); err != nil {
		t.Fatal(err)
	}

	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	c, ok := findChange(changes, "gone.txt")
	if !ok || c.Status != StatusRemoved {
		t.Fatalf("expected gone.txt removed, got %+v (found=%v)", c, ok)
	}
}

func TestScan_RespectsIgnoreMatcher(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, ".oxenignore"), "*.log\n")
	writeFile(t, filepath.Join(workDir, "debug.log"), "noisy")

	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findChange(changes, "debug.log"); ok {
		t.Fatalf("expected ignored file to be excluded from scan, got %+v", changes)
	}
}

func TestScan_SkipsOxenDir(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, ".oxen", "config.toml"), "junk")

	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	changes, err := Scan(workDir, idx, ignore.Load(workDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range changes {
		if c.Path == ".oxen/config.toml" {
			t.Fatalf("expected .oxen/ to be excluded entirely, got %+v", changes)
		}
	}
}

package wcindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

func TestSetGetRemove(t *testing.T) {
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	e := Entry{ContentHash: hashing.Of([]byte("hello")), Size: 5, MtimeS: 1000, MtimeNs: 42}
	if err := idx.Set("a/b/c.txt", e); err != nil {
		t.Fatal(err)
	}

	got, ok, err := idx.Get("a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if got != e {
		t.Fatalf("got %+v, want %+v", got, e)
	}

	if err := idx.Remove("a/b/c.txt"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := idx.Get("a/b/c.txt"); err != nil || ok {
		t.Fatal("expected entry to be gone after Remove")
	}
}

func TestGet_Missing(t *testing.T) {
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := idx.Get("nope.txt"); err != nil || ok {
		t.Fatal("expected (false, nil) for missing entry")
	}
}

func TestAll_RecoversPaths(t *testing.T) {
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]Entry{
		"one.txt":     {ContentHash: hashing.Of([]byte("1")), Size: 1, MtimeS: 1, MtimeNs: 0},
		"dir/two.txt": {ContentHash: hashing.Of([]byte("2")), Size: 2, MtimeS: 2, MtimeNs: 0},
	}
	for path, e := range want {
		if err := idx.Set(path, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := idx.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(want) {
		t.Fatalf("got %d entries, want %d", len(all), len(want))
	}
	for path, e := range want {
		got, ok := all[path]
		if !ok {
			t.Fatalf("missing path %q in All()", path)
		}
		if got != e {
			t.Fatalf("entry for %q = %+v, want %+v", path, got, e)
		}
	}
}

func TestSet_Overwrite(t *testing.T) {
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e1 := Entry{ContentHash: hashing.Of([]byte("v1")), Size: 2, MtimeS: 1, MtimeNs: 0}
	e2 := Entry{ContentHash: hashing.Of([]byte("v2")), Size: 2, MtimeS: 2, MtimeNs: 0}
	if err := idx.Set("f.txt", e1); err != nil {
		t.Fatal(err)
	}
	if err := idx.Set("f.txt", e2); err != nil {
		t.Fatal(err)
	}
	got, ok, err := idx.Get("f.txt")
	if err != nil || !ok {
		t.Fatal("expected entry present after overwrite")
	}
	if got != e2 {
		t.Fatalf("got %+v, want %+v", got, e2)
	}
}

func TestRecordClean_StampsFromDisk(t *testing.T) {
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "f.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hashing.Of([]byte("payload"))
	if err := RecordClean(idx, workDir, "f.txt", h); err != nil {
		t.Fatal(err)
	}
	got, ok, err := idx.Get("f.txt")
	if err != nil || !ok {
		t.Fatal("expected entry present after RecordClean")
	}
	if got.ContentHash != h || got.Size != int64(len("payload")) {
		t.Fatalf("unexpected recorded entry: %+v", got)
	}
}

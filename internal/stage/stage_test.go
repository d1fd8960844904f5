package stage

import (
	"testing"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

func notInHead(string) (hashing.Hash, bool, error) {
	return hashing.Hash{}, false, nil
}

func inHeadAt(h hashing.Hash) CommittedLookup {
	return func(string) (hashing.Hash, bool, error) {
		return h, true, nil
	}
}

func TestAdd_NewFileStagesAsAdded(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hashing.Of([]byte("v1"))
	if err := s.Add("a.txt", h, notInHead); err != nil {
		t.Fatal(err)
	}
	e, ok, err := s.Get("a.txt")
	if err != nil || !ok {
		t.Fatal("expected staged entry")
	}
	if e.Status != StatusAdded || e.ContentHash != h {
		t.Fatalf("got %+v", e)
	}
}

func TestAdd_UnchangedRelativeToHeadIsNoop(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hashing.Of([]byte("same"))
	if err := s.Add("a.txt", h, inHeadAt(h)); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get("a.txt"); err != nil || ok {
		t.Fatal("expected no staged entry for a file matching HEAD")
	}
}

func TestAdd_ModifiedFileStagesAsModified(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	oldHash := hashing.Of([]byte("old"))
	newHash := hashing.Of([]byte("new"))
	if err := s.Add("a.txt", newHash, inHeadAt(oldHash)); err != nil {
		t.Fatal(err)
	}
	e, ok, err := s.Get("a.txt")
	if err != nil || !ok {
		t.Fatal("expected staged entry")
	}
	if e.Status != StatusModified || e.ContentHash != newHash {
		t.Fatalf("got %+v", e)
	}
}

func TestAdd_SupersedesEarlierStagedEntry(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h1 := hashing.Of([]byte("v1"))
	h2 := hashing.Of([]byte("v2"))
	if err := s.Add("a.txt", h1, notInHead); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a.txt", h2, notInHead); err != nil {
		t.Fatal(err)
	}
	e, ok, err := s.Get("a.txt")
	if err != nil || !ok {
		t.Fatal("expected staged entry")
	}
	if e.Status != StatusAdded || e.ContentHash != h2 {
		t.Fatalf("expected still-Added with latest hash, got %+v", e)
	}
}

func TestRm_RemovesStagedAddedEntryOutright(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a.txt", hashing.Of([]byte("v1")), notInHead); err != nil {
		t.Fatal(err)
	}
	if err := s.Rm("a.txt", notInHead); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get("a.txt"); err != nil || ok {
		t.Fatal("expected stage entry gone after Rm of never-committed add")
	}
}

func TestRm_CommittedFileStagesAsRemoved(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hashing.Of([]byte("committed"))
	if err := s.Rm("a.txt", inHeadAt(h)); err != nil {
		t.Fatal(err)
	}
	e, ok, err := s.Get("a.txt")
	if err != nil || !ok {
		t.Fatal("expected staged removal entry")
	}
	if e.Status != StatusRemoved {
		t.Fatalf("got %+v", e)
	}
}

func TestAll_SortedByPath(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"z.txt", "a.txt", "m.txt"} {
		if err := s.Add(p, hashing.Of([]byte(p)), notInHead); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "m.txt", "z.txt"}
	if len(all) != len(want) {
		t.Fatalf("got %d entries, want %d", len(all), len(want))
	}
	for i, p := range want {
		if all[i].Path != p {
			t.Fatalf("got order %v, want %v", all, want)
		}
	}
}

func TestClear_RemovesAllEntries(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a.txt", hashing.Of([]byte("1")), notInHead); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("b.txt", hashing.Of([]byte("2")), notInHead); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty stager after Clear, got %v", all)
	}
}

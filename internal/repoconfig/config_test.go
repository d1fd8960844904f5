package repoconfig

import (
	"testing"

	"github.com/oxenhq/oxen-core/internal/oxerr"
)

func TestLoad_MissingFileReturnsNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if !oxerr.Is(err, oxerr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := New()
	cfg.SetRemote("origin", "https://oxen.example.com/acme/dataset")
	depth := 5
	cfg.Depth = &depth
	cfg.SubtreePaths = []string{"images/"}

	if err := cfg.Save(dir); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.VNodeSize != DefaultVNodeSize || got.MinVersion != MinVersion {
		t.Fatalf("unexpected scalar fields: %+v", got)
	}
	r, ok := got.Remote("origin")
	if !ok || r.URL != "https://oxen.example.com/acme/dataset" {
		t.Fatalf("expected origin remote to round-trip, got %+v ok=%v", r, ok)
	}
	if got.Depth == nil || *got.Depth != 5 {
		t.Fatalf("expected depth 5, got %v", got.Depth)
	}
	if len(got.SubtreePaths) != 1 || got.SubtreePaths[0] != "images/" {
		t.Fatalf("expected subtree_paths round-trip, got %v", got.SubtreePaths)
	}
	if !got.IsShallow() {
		t.Fatal("expected IsShallow true when depth is set")
	}
}

func TestRemoveRemote(t *testing.T) {
	cfg := New()
	cfg.SetRemote("origin", "https://example.com/x")
	if !cfg.RemoveRemote("origin") {
		t.Fatal("expected RemoveRemote to report true for existing remote")
	}
	if cfg.RemoveRemote("origin") {
		t.Fatal("expected RemoveRemote to report false once already removed")
	}
}

func TestNew_HasNoRemotesAndIsNotShallow(t *testing.T) {
	cfg := New()
	if len(cfg.Remotes) != 0 {
		t.Fatalf("expected no remotes, got %v", cfg.Remotes)
	}
	if cfg.IsShallow() {
		t.Fatal("expected fresh config to not be shallow")
	}
}

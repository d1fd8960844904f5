package content

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

func TestPut_Idempotent(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello world")
	h1, err := store.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := store.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected idempotent hash, got %s vs %s", h1, h2)
	}
	if !store.Exists(h1) {
		t.Fatal("expected blob to exist after Put")
	}
}

func TestPut_GetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("round trip content")
	h, err := store.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetBytes(h)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: %q vs %q", got, data)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(hashing.Of([]byte("never stored"))); err == nil {
		t.Fatal("expected error for missing blob")
	}
}

func TestChunkedPut_SmallFileUnchunked(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "store"), 16)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "small.txt")
	content := []byte("tiny")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	whole, chunks, err := store.ChunkedPut(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunking for small file, got %d chunks", len(chunks))
	}
	if whole != hashing.Of(content) {
		t.Fatalf("whole hash mismatch")
	}
}

func TestChunkedPut_LargeFileChunked(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "store"), 16)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "big.bin")
	content := bytes.Repeat([]byte{0x01, 0x02}, 100) // 200 bytes > 16-byte threshold
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	whole, chunks, err := store.ChunkedPut(path)
	if err != nil {
		t.Fatal(err)
	}
	wantChunks := (len(content) + 15) / 16
	if len(chunks) != wantChunks {
		t.Fatalf("expected %d chunks, got %d", wantChunks, len(chunks))
	}
	if whole != hashing.Of(content) {
		t.Fatalf("whole hash mismatch for chunked file")
	}

	var buf bytes.Buffer
	if err := store.Reconstruct(whole, chunks, &buf); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatal("reconstructed content mismatch")
	}
}

func TestReconstruct_Unchunked(t *testing.T) {
	store, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("single blob")
	h, err := store.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := store.Reconstruct(h, nil, &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatal("unchunked reconstruct mismatch")
	}
}

func TestCleanStaleTemp_RemovesOrphans(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "tmp-orphan")
	if err := os.WriteFile(stale, []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.CleanStaleTemp(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected stale temp file to be removed")
	}
}

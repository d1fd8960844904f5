package nodestore

import (
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
)

func TestPutGetNode_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ch := hashing.Of([]byte("content"))
	n := &merkle.Node{
		Type: merkle.NodeFile,
		File: &merkle.FileNode{
			Name:         "a.txt",
			ContentHash:  ch,
			CombinedHash: merkle.CombinedHash(ch, nil),
			NumBytes:     7,
		},
	}
	n.Hash = merkle.ComputeHash(n)

	if err := store.PutNode(n); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if !store.HasNode(n.Hash) {
		t.Fatal("expected HasNode true after PutNode")
	}

	got, err := store.GetNode(n.Hash)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.File.Name != "a.txt" {
		t.Fatalf("round trip field mismatch: %+v", got.File)
	}
}

func TestGetNode_NotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetNode(hashing.Of([]byte("missing"))); err == nil {
		t.Fatal("expected error for missing node")
	}
}

func TestPutNode_Idempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n := &merkle.Node{Type: merkle.NodeFileChunk, FileChunk: &merkle.FileChunkNode{Data: []byte("chunk")}}
	n.Hash = merkle.ComputeHash(n)

	if err := store.PutNode(n); err != nil {
		t.Fatal(err)
	}
	if err := store.PutNode(n); err != nil {
		t.Fatalf("second PutNode should be a no-op, got error: %v", err)
	}
}

func TestIterChildren_Dir(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	fileHash := hashing.Of([]byte("file"))
	vn := &merkle.Node{
		Type: merkle.NodeVNode,
		VNode: &merkle.VNodeData{
			BucketIndex: 0,
			NumBuckets:  1,
			Children:    []merkle.VNodeChild{{Name: "a.txt", Hash: fileNodeHash(t, store, fileHash), Kind: merkle.EntryFile}},
		},
	}
	vn.Hash = merkle.ComputeHash(vn)
	if err := store.PutNode(vn); err != nil {
		t.Fatal(err)
	}

	dir := &merkle.Node{
		Type: merkle.NodeDir,
		Dir: &merkle.DirNode{
			Name:       "",
			NumBuckets: 1,
			VNodes:     []hashing.Hash{vn.Hash},
		},
	}
	dir.Hash = merkle.ComputeHash(dir)
	if err := store.PutNode(dir); err != nil {
		t.Fatal(err)
	}

	children, err := store.IterChildren(dir.Hash)
	if err != nil {
		t.Fatalf("IterChildren: %v", err)
	}
	if len(children) != 1 || children[0] != vn.Hash {
		t.Fatalf("expected [%s], got %v", vn.Hash, children)
	}
}

func fileNodeHash(t *testing.T, store *Store, contentHash hashing.Hash) hashing.Hash {
	t.Helper()
	n := &merkle.Node{
		Type: merkle.NodeFile,
		File: &merkle.FileNode{
			Name:         "a.txt",
			ContentHash:  contentHash,
			CombinedHash: merkle.CombinedHash(contentHash, nil),
			LastCommit:   hashing.Hash{},
		},
	}
	n.Hash = merkle.ComputeHash(n)
	if err := store.PutNode(n); err != nil {
		t.Fatal(err)
	}
	return n.Hash
}

func TestIterChildren_Commit(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rootDir := hashing.Of([]byte("root"))
	parent := hashing.Of([]byte("parent"))
	c := &merkle.Node{
		Type: merkle.NodeCommit,
		Commit: &merkle.CommitNode{
			Message: "c1",
			Author:  merkle.Signature{Name: "t", Email: "t@t.com", When: time.Now()},
			Parents: []hashing.Hash{parent},
			RootDir: rootDir,
		},
	}
	c.Hash = merkle.ComputeHash(c)
	if err := store.PutNode(c); err != nil {
		t.Fatal(err)
	}
	children, err := store.IterChildren(c.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children (parent + root dir), got %d", len(children))
	}
}

package merkle

import (
	"testing"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// memStore is a trivial in-memory Loader used by tests. Packages that need a
// concrete node store (internal/nodestore) implement the same Loader
// interface against disk.
type memStore struct {
	nodes map[hashing.Hash]*Node
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[hashing.Hash]*Node)}
}

func (m *memStore) GetNode(h hashing.Hash) (*Node, error) {
	n, ok := m.nodes[h]
	if !ok {
		return nil, errNotFoundTest
	}
	return n, nil
}

func (m *memStore) put(n *Node) hashing.Hash {
	n.Hash = ComputeHash(n)
	m.nodes[n.Hash] = n
	return n.Hash
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errNotFoundTest = testErr("not found")

func makeFile(t *testing.T, store *memStore, name string, content []byte) VNodeChild {
	t.Helper()
	ch := hashing.Of(content)
	fn := &FileNode{
		Name:         name,
		ContentHash:  ch,
		CombinedHash: CombinedHash(ch, nil),
		NumBytes:     uint64(len(content)),
		DataType:     DataTypeText,
	}
	h := store.put(&Node{Type: NodeFile, File: fn})
	return VNodeChild{Name: name, Hash: h, Kind: EntryFile}
}

func makeDir(t *testing.T, store *memStore, name string, children []VNodeChild) VNodeChild {
	t.Helper()
	buckets := BuildVNodeBuckets(children, DefaultBucketSize)
	vhashes := make([]hashing.Hash, len(buckets))
	var numBytes, numFiles uint64
	for i, b := range buckets {
		vhashes[i] = store.put(&Node{Type: NodeVNode, VNode: b})
	}
	for _, c := range children {
		if c.Kind == EntryFile {
			numFiles++
		}
	}
	dir := &DirNode{
		Name:       name,
		NumBytes:   numBytes,
		NumFiles:   numFiles,
		NumEntries: uint64(len(children)),
		VNodes:     vhashes,
		NumBuckets: uint32(len(buckets)),
	}
	h := store.put(&Node{Type: NodeDir, Dir: dir})
	return VNodeChild{Name: name, Hash: h, Kind: EntryDir}
}

func TestWalkFiles_FlatDir(t *testing.T) {
	store := newMemStore()
	a := makeFile(t, store, "a.txt", []byte("hello"))
	b := makeFile(t, store, "b.txt", []byte("world"))
	root := makeDir(t, store, "", []VNodeChild{a, b})

	files, err := WalkFiles(store, root.Hash)
	if err != nil {
		t.Fatalf("WalkFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files["a.txt"].ContentHash != hashing.Of([]byte("hello")) {
		t.Fatalf("a.txt content hash mismatch")
	}
}

func TestWalkFiles_Nested(t *testing.T) {
	store := newMemStore()
	inner := makeFile(t, store, "c.txt", []byte("nested"))
	subdir := makeDir(t, store, "sub", []VNodeChild{inner})
	top := makeFile(t, store, "a.txt", []byte("top"))
	root := makeDir(t, store, "", []VNodeChild{top, subdir})

	files, err := WalkFiles(store, root.Hash)
	if err != nil {
		t.Fatalf("WalkFiles: %v", err)
	}
	if _, ok := files["sub/c.txt"]; !ok {
		t.Fatalf("expected sub/c.txt in walk result, got %v", files)
	}
}

func TestLookup_DescendsByBucket(t *testing.T) {
	store := newMemStore()
	var children []VNodeChild
	for i := 0; i < 50; i++ {
		children = append(children, makeFile(t, store, string(rune('a'+i%26))+string(rune('0'+i/26)), []byte{byte(i)}))
	}
	root := makeDir(t, store, "", children)

	target := children[10]
	fn, err := Lookup(store, root.Hash, target.Name)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if fn.Name != target.Name {
		t.Fatalf("Lookup returned wrong file: %s vs %s", fn.Name, target.Name)
	}
}

func TestLookup_NotFound(t *testing.T) {
	store := newMemStore()
	root := makeDir(t, store, "", nil)
	if _, err := Lookup(store, root.Hash, "missing.txt"); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	store := newMemStore()
	a := makeFile(t, store, "a.txt", []byte("hello"))
	b := makeFile(t, store, "b.txt", []byte("world"))

	// Building the same directory contents in a different insertion order
	// must produce the same root hash.
	root1 := makeDir(t, store, "", []VNodeChild{a, b})
	root2 := makeDir(t, store, "", []VNodeChild{b, a})
	if root1.Hash != root2.Hash {
		t.Fatalf("dir hash depends on insertion order: %s vs %s", root1.Hash, root2.Hash)
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	ch := hashing.Of([]byte("payload"))
	orig := &Node{
		Type: NodeFile,
		File: &FileNode{
			Name:         "data.csv",
			ContentHash:  ch,
			CombinedHash: CombinedHash(ch, nil),
			NumBytes:     7,
			DataType:     DataTypeTabular,
			MimeType:     "text/csv",
			Extension:    "csv",
		},
	}
	orig.Hash = ComputeHash(orig)

	data, err := Serialize(orig)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Hash != orig.Hash {
		t.Fatalf("round trip hash mismatch: %s vs %s", got.Hash, orig.Hash)
	}
	if got.File.Name != "data.csv" || got.File.MimeType != "text/csv" {
		t.Fatalf("round trip field mismatch: %+v", got.File)
	}
}

func TestDiffTrees_AddedRemovedModified(t *testing.T) {
	store := newMemStore()
	a1 := makeFile(t, store, "a.txt", []byte("v1"))
	stay := makeFile(t, store, "stay.txt", []byte("same"))
	rootA := makeDir(t, store, "", []VNodeChild{a1, stay})

	a2 := makeFile(t, store, "a.txt", []byte("v2"))
	newFile := makeFile(t, store, "new.txt", []byte("added"))
	rootB := makeDir(t, store, "", []VNodeChild{a2, stay, newFile})

	diff, err := DiffTrees(store, rootA.Hash, rootB.Hash)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if _, ok := diff.Modified["a.txt"]; !ok {
		t.Fatalf("expected a.txt modified, got %+v", diff)
	}
	if _, ok := diff.Added["new.txt"]; !ok {
		t.Fatalf("expected new.txt added, got %+v", diff)
	}
	if len(diff.Removed) != 0 {
		t.Fatalf("expected no removals, got %+v", diff.Removed)
	}
}

func TestDiffTrees_IdenticalRootsNoDiff(t *testing.T) {
	store := newMemStore()
	a := makeFile(t, store, "a.txt", []byte("hello"))
	root := makeDir(t, store, "", []VNodeChild{a})

	diff, err := DiffTrees(store, root.Hash, root.Hash)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if len(diff.Added) != 0 || len(diff.Removed) != 0 || len(diff.Modified) != 0 {
		t.Fatalf("expected empty diff for identical roots, got %+v", diff)
	}
}

func TestBuildVNodeBuckets_RewritesOneBucket(t *testing.T) {
	store := newMemStore()
	var children []VNodeChild
	for i := 0; i < 200; i++ {
		children = append(children, VNodeChild{Name: padName(i), Hash: hashing.Of([]byte{byte(i)}), Kind: EntryFile})
	}
	before := BuildVNodeBuckets(children, 50)

	// Mutate a single child's hash — only the bucket containing it should
	// change.
	children[3].Hash = hashing.Of([]byte("mutated"))
	after := BuildVNodeBuckets(children, 50)

	changed := 0
	for i := range before {
		bh := (&Node{Type: NodeVNode, VNode: before[i]})
		bh.Hash = ComputeHash(bh)
		ah := (&Node{Type: NodeVNode, VNode: after[i]})
		ah.Hash = ComputeHash(ah)
		if bh.Hash != ah.Hash {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("expected exactly 1 bucket to change, got %d", changed)
	}
}

func padName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(letters[(i/26)%26]) + string(rune('0'+i%10))
}

package merkle

import (
	"sort"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// ComputeHash canonicalises a node's fields through hashing.Composer and
// returns its content hash. Determinism depends on this
// function never depending on map iteration order or wall-clock state other
// than the fields explicitly composed.
func ComputeHash(n *Node) hashing.Hash {
	switch n.Type {
	case NodeCommit:
		return hashCommit(n.Commit)
	case NodeDir:
		return hashDir(n.Dir)
	case NodeVNode:
		return hashVNode(n.VNode)
	case NodeFile:
		return hashFile(n.File)
	case NodeFileChunk:
		return hashing.Of(n.FileChunk.Data)
	default:
		return hashing.Hash{}
	}
}

func hashCommit(c *CommitNode) hashing.Hash {
	comp := hashing.NewComposer().
		PutString(c.Message).
		PutString(c.Author.Name).
		PutString(c.Author.Email).
		PutInt64(c.Author.When.UnixNano()).
		PutUint32(uint32(len(c.Parents)))
	// Parent order is meaningful (first parent is "base" in a merge), so it
	// is composed as given, not sorted.
	for _, p := range c.Parents {
		comp.PutHash(p)
	}
	comp.PutHash(c.RootDir)
	return comp.Sum()
}

func hashDir(d *DirNode) hashing.Hash {
	comp := hashing.NewComposer().
		PutString(d.Name).
		PutUint64(d.NumBytes).
		PutUint64(d.NumFiles).
		PutUint64(d.NumEntries).
		PutUint32(d.NumBuckets)

	// DataTypes are sorted by type byte so insertion order never affects
	// the hash.
	sorted := append([]DataTypeAgg(nil), d.DataTypes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })
	comp.PutUint32(uint32(len(sorted)))
	for _, agg := range sorted {
		comp.PutUint32(uint32(agg.Type)).PutUint64(agg.NumBytes).PutUint64(agg.NumFiles)
	}

	comp.PutUint32(uint32(len(d.VNodes)))
	for _, v := range d.VNodes {
		comp.PutHash(v)
	}
	return comp.Sum()
}

func hashVNode(v *VNodeData) hashing.Hash {
	// Children must already be in canonical (ascending name) order — see
	// SortChildren — so two buckets with the same members always hash
	// identically regardless of insertion order.
	comp := hashing.NewComposer().
		PutUint32(v.BucketIndex).
		PutUint32(v.NumBuckets).
		PutUint32(uint32(len(v.Children)))
	for _, c := range v.Children {
		comp.PutString(c.Name).PutHash(c.Hash).PutUint32(uint32(c.Kind))
	}
	return comp.Sum()
}

func hashFile(f *FileNode) hashing.Hash {
	comp := hashing.NewComposer().
		PutString(f.Name).
		PutHash(f.ContentHash)
	if f.MetadataHash != nil {
		comp.PutUint32(1).PutHash(*f.MetadataHash)
	} else {
		comp.PutUint32(0)
	}
	comp.PutUint64(f.NumBytes).
		PutInt64(f.MtimeSeconds).
		PutUint32(f.MtimeNanoseconds).
		PutUint32(uint32(f.DataType)).
		PutString(f.MimeType).
		PutString(f.Extension).
		PutUint32(uint32(f.ChunkType)).
		PutUint32(uint32(f.StorageBackend))
	comp.PutUint32(uint32(len(f.ChunkHashes)))
	for _, ch := range f.ChunkHashes {
		comp.PutHash(ch)
	}
	return comp.Sum()
}

// CombinedHash computes FileNode.CombinedHash from ContentHash and the
// optional MetadataHash: a file's node identity changes
// when either its bytes or its metadata change.
func CombinedHash(contentHash hashing.Hash, metadataHash *hashing.Hash) hashing.Hash {
	comp := hashing.NewComposer().PutHash(contentHash)
	if metadataHash != nil {
		comp.PutUint32(1).PutHash(*metadataHash)
	} else {
		comp.PutUint32(0)
	}
	return comp.Sum()
}

// SortChildren orders a VNode's children ascending by name, the tie-break
// that makes bucket hashing insertion-order-independent.
func SortChildren(children []VNodeChild) {
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
}

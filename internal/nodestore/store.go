// Package nodestore is the appendable, hash-keyed store of serialised
// Merkle nodes, sharded by hash prefix the same way the content
// store shards blobs. It also maintains a secondary children index so the
// transfer and checkout engines can enumerate a node's immediate children
// without deserialising every candidate node.
package nodestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// Store persists nodes under root/<hash[0:2]>/<hash[2:]>/{node,children}.
type Store struct {
	root string
}

// New returns a Store rooted at dir (typically .oxen/tree/nodes).
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("nodestore: create store root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) shardDir(h hashing.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// HasNode reports whether a node with hash h is present.
func (s *Store) HasNode(h hashing.Hash) bool {
	_, err := os.Stat(filepath.Join(s.shardDir(h), "node"))
	return err == nil
}

// PutNode serialises and persists n, along with a children index entry
// derived from its variant, written atomically alongside the node record.
// A node that already exists is left untouched (nodes are immutable,
// lifecycle).
func (s *Store) PutNode(n *merkle.Node) error {
	if n.Hash.IsZero() {
		n.Hash = merkle.ComputeHash(n)
	}
	if s.HasNode(n.Hash) {
		return nil
	}

	data, err := merkle.Serialize(n)
	if err != nil {
		return fmt.Errorf("nodestore: serialize %s node %s: %w", n.Type, n.Hash.ShortString(10), err)
	}

	dir := s.shardDir(n.Hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("nodestore: create shard dir: %w", err)
	}

	if err := writeAtomic(dir, "node", data); err != nil {
		return fmt.Errorf("nodestore: write node %s: %w", n.Hash.ShortString(10), err)
	}

	children := childHashesOf(n)
	if err := writeAtomic(dir, "children", encodeChildren(children)); err != nil {
		return fmt.Errorf("nodestore: write children index for %s: %w", n.Hash.ShortString(10), err)
	}
	return nil
}

// GetNode implements merkle.Loader.
func (s *Store) GetNode(h hashing.Hash) (*merkle.Node, error) {
	data, err := os.ReadFile(filepath.Join(s.shardDir(h), "node"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.Wrap(oxerr.KindNotFound, fmt.Sprintf("node %s", h.ShortString(10)), err)
		}
		return nil, oxerr.Wrap(oxerr.KindIO, "read node", err)
	}
	n, err := merkle.Deserialize(data)
	if err != nil {
		return nil, oxerr.Wrap(oxerr.KindCorruptStore, fmt.Sprintf("node %s", h.ShortString(10)), err)
	}
	if n.Hash != h {
		return nil, oxerr.New(oxerr.KindCorruptStore, fmt.Sprintf("node at %s rehashes to %s", h.ShortString(10), n.Hash.ShortString(10)))
	}
	return n, nil
}

// IterChildren returns the immediate child hashes recorded for parent,
// without deserialising the parent node itself.
func (s *Store) IterChildren(parent hashing.Hash) ([]hashing.Hash, error) {
	data, err := os.ReadFile(filepath.Join(s.shardDir(parent), "children"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.Wrap(oxerr.KindNotFound, fmt.Sprintf("children of %s", parent.ShortString(10)), err)
		}
		return nil, oxerr.Wrap(oxerr.KindIO, "read children index", err)
	}
	return decodeChildren(data)
}

func childHashesOf(n *merkle.Node) []hashing.Hash {
	switch n.Type {
	case merkle.NodeCommit:
		// A commit's closure includes both its parent commits (to walk
		// history) and its root directory (to walk the tree it owns).
		children := append([]hashing.Hash(nil), n.Commit.Parents...)
		return append(children, n.Commit.RootDir)
	case merkle.NodeDir:
		return append([]hashing.Hash(nil), n.Dir.VNodes...)
	case merkle.NodeVNode:
		out := make([]hashing.Hash, len(n.VNode.Children))
		for i, c := range n.VNode.Children {
			out[i] = c.Hash
		}
		return out
	case merkle.NodeFile:
		return append([]hashing.Hash(nil), n.File.ChunkHashes...)
	default:
		return nil
	}
}

func encodeChildren(hashes []hashing.Hash) []byte {
	out := make([]byte, 4, 4+len(hashes)*hashing.Size)
	binary.LittleEndian.PutUint32(out, uint32(len(hashes)))
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

func decodeChildren(data []byte) ([]hashing.Hash, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("nodestore: truncated children index")
	}
	count := binary.LittleEndian.Uint32(data[:4])
	rest := data[4:]
	if len(rest) != int(count)*hashing.Size {
		return nil, fmt.Errorf("nodestore: children index length mismatch")
	}
	out := make([]hashing.Hash, count)
	for i := range out {
		copy(out[i][:], rest[i*hashing.Size:(i+1)*hashing.Size])
	}
	return out, nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+"-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

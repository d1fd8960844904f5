package merkle

import (
	"fmt"
	"path"
	"sort"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// Loader fetches a node by hash, typically backed by the node store.
// Tree-walking code depends only on this interface so it can be unit tested
// against an in-memory map.
type Loader interface {
	GetNode(h hashing.Hash) (*Node, error)
}

// Entry is one resolved file at a path within a tree.
type Entry struct {
	Path string
	File *FileNode
}

// WalkFiles recursively resolves every file reachable from rootDir,
// returning them keyed by slash-separated relative path.
func WalkFiles(loader Loader, rootDir hashing.Hash) (map[string]*FileNode, error) {
	out := make(map[string]*FileNode)
	if rootDir.IsZero() {
		return out, nil
	}
	if err := walkDir(loader, rootDir, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkDir(loader Loader, dirHash hashing.Hash, prefix string, out map[string]*FileNode) error {
	node, err := loader.GetNode(dirHash)
	if err != nil {
		return fmt.Errorf("merkle: load dir %s: %w", dirHash.ShortString(10), err)
	}
	if node.Type != NodeDir {
		return fmt.Errorf("merkle: expected dir node at %s, got %s", dirHash.ShortString(10), node.Type)
	}
	for _, vh := range node.Dir.VNodes {
		vnode, err := loader.GetNode(vh)
		if err != nil {
			return fmt.Errorf("merkle: load vnode %s: %w", vh.ShortString(10), err)
		}
		if vnode.Type != NodeVNode {
			return fmt.Errorf("merkle: expected vnode at %s, got %s", vh.ShortString(10), vnode.Type)
		}
		for _, c := range vnode.VNode.Children {
			p := joinPath(prefix, c.Name)
			switch c.Kind {
			case EntryFile:
				fn, err := loader.GetNode(c.Hash)
				if err != nil {
					return fmt.Errorf("merkle: load file %s: %w", p, err)
				}
				if fn.Type != NodeFile {
					return fmt.Errorf("merkle: expected file node at %s, got %s", p, fn.Type)
				}
				out[p] = fn.File
			case EntryDir:
				if err := walkDir(loader, c.Hash, p, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Lookup resolves a single slash-separated path within rootDir, descending
// one directory component at a time via its VNode bucket, without walking
// the whole tree.
func Lookup(loader Loader, rootDir hashing.Hash, p string) (*FileNode, error) {
	if rootDir.IsZero() {
		return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
	}
	parts := splitPath(p)
	curDir := rootDir
	for i, part := range parts {
		node, err := loader.GetNode(curDir)
		if err != nil {
			return nil, err
		}
		if node.Type != NodeDir {
			return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
		}
		child, kind, found, err := lookupInDir(loader, node.Dir, part)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
		}
		if i == len(parts)-1 {
			if kind != EntryFile {
				return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
			}
			fn, err := loader.GetNode(child)
			if err != nil {
				return nil, err
			}
			return fn.File, nil
		}
		if kind != EntryDir {
			return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
		}
		curDir = child
	}
	return nil, fmt.Errorf("merkle: path %q: %w", p, oxerr.ErrNotFound)
}

func lookupInDir(loader Loader, dir *DirNode, name string) (hashing.Hash, DirEntryKind, bool, error) {
	numBuckets := dir.NumBuckets
	if numBuckets == 0 {
		numBuckets = uint32(len(dir.VNodes))
	}
	idx := BucketIndex(name, numBuckets)
	if int(idx) >= len(dir.VNodes) {
		return hashing.Hash{}, 0, false, nil
	}
	vnode, err := loader.GetNode(dir.VNodes[idx])
	if err != nil {
		return hashing.Hash{}, 0, false, err
	}
	i := sort.Search(len(vnode.VNode.Children), func(i int) bool {
		return vnode.VNode.Children[i].Name >= name
	})
	if i < len(vnode.VNode.Children) && vnode.VNode.Children[i].Name == name {
		c := vnode.VNode.Children[i]
		return c.Hash, c.Kind, true, nil
	}
	return hashing.Hash{}, 0, false, nil
}

func splitPath(p string) []string {
	clean := path.Clean(p)
	if clean == "." || clean == "" {
		return nil
	}
	var parts []string
	for _, part := range splitSlash(clean) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func splitSlash(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	parts = append(parts, p[start:])
	return parts
}

package merkle

import (
	"fmt"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// TreeDiff is the result of comparing two resolved trees by path.
type TreeDiff struct {
	Added    map[string]*FileNode // in b, not in a
	Removed  map[string]*FileNode // in a, not in b
	Modified map[string]ModifiedEntry
}

// ModifiedEntry is a path present in both trees with differing content.
type ModifiedEntry struct {
	Old *FileNode
	New *FileNode
}

// DiffTrees walks both trees in lockstep, skipping any subtree whose DirNode
// hash is identical on both sides (the same sharing property the transfer
// engine exploits in §4.11). Returns per-path Added/Removed/Modified sets.
func DiffTrees(loader Loader, aRoot, bRoot hashing.Hash) (*TreeDiff, error) {
	d := &TreeDiff{
		Added:    make(map[string]*FileNode),
		Removed:  make(map[string]*FileNode),
		Modified: make(map[string]ModifiedEntry),
	}
	if err := diffDirs(loader, aRoot, bRoot, "", d); err != nil {
		return nil, err
	}
	return d, nil
}

func diffDirs(loader Loader, aHash, bHash hashing.Hash, prefix string, d *TreeDiff) error {
	if aHash == bHash {
		return nil
	}

	aChildren, err := dirChildren(loader, aHash)
	if err != nil {
		return err
	}
	bChildren, err := dirChildren(loader, bHash)
	if err != nil {
		return err
	}

	names := unionNames(aChildren, bChildren)
	for _, name := range names {
		p := joinPath(prefix, name)
		av, aok := aChildren[name]
		bv, bok := bChildren[name]

		switch {
		case aok && !bok:
			if err := removeAll(loader, av, p, d); err != nil {
				return err
			}
		case !aok && bok:
			if err := addAll(loader, bv, p, d); err != nil {
				return err
			}
		case av.Hash == bv.Hash:
			// identical subtree/file, nothing to do
		case av.Kind == EntryDir && bv.Kind == EntryDir:
			if err := diffDirs(loader, av.Hash, bv.Hash, p, d); err != nil {
				return err
			}
		case av.Kind == EntryFile && bv.Kind == EntryFile:
			oldNode, err := loader.GetNode(av.Hash)
			if err != nil {
				return err
			}
			newNode, err := loader.GetNode(bv.Hash)
			if err != nil {
				return err
			}
			d.Modified[p] = ModifiedEntry{Old: oldNode.File, New: newNode.File}
		default:
			// kind changed file<->dir: treat as remove+add
			if err := removeAll(loader, av, p, d); err != nil {
				return err
			}
			if err := addAll(loader, bv, p, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func addAll(loader Loader, c VNodeChild, p string, d *TreeDiff) error {
	if c.Kind == EntryFile {
		node, err := loader.GetNode(c.Hash)
		if err != nil {
			return err
		}
		d.Added[p] = node.File
		return nil
	}
	files, err := WalkFiles(loader, c.Hash)
	if err != nil {
		return err
	}
	for sub, f := range files {
		d.Added[joinPath(p, sub)] = f
	}
	return nil
}

func removeAll(loader Loader, c VNodeChild, p string, d *TreeDiff) error {
	if c.Kind == EntryFile {
		node, err := loader.GetNode(c.Hash)
		if err != nil {
			return err
		}
		d.Removed[p] = node.File
		return nil
	}
	files, err := WalkFiles(loader, c.Hash)
	if err != nil {
		return err
	}
	for sub, f := range files {
		d.Removed[joinPath(p, sub)] = f
	}
	return nil
}

func dirChildren(loader Loader, dirHash hashing.Hash) (map[string]VNodeChild, error) {
	out := make(map[string]VNodeChild)
	if dirHash.IsZero() {
		return out, nil
	}
	node, err := loader.GetNode(dirHash)
	if err != nil {
		return nil, err
	}
	if node.Type != NodeDir {
		return nil, fmt.Errorf("merkle: expected dir node, got %s", node.Type)
	}
	for _, vh := range node.Dir.VNodes {
		vnode, err := loader.GetNode(vh)
		if err != nil {
			return nil, err
		}
		for _, c := range vnode.VNode.Children {
			out[c.Name] = c
		}
	}
	return out, nil
}

func unionNames(a, b map[string]VNodeChild) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var names []string
	for name := range a {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range b {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

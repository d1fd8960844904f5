// Package commitbuilder implements the commit pipeline: given a
// parent commit's root tree and a staged change set, it produces a new
// CommitNode sharing every untouched subtree with its parent, writing only
// the Dir/VNode/File nodes that changed.
package commitbuilder

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/stage"
)

// FileMeta carries everything needed to synthesise a FileNode for one
// added or modified path, gathered by the caller (content store hashing +
// filesystem stat + data-type sniffing) before Build is invoked.
type FileMeta struct {
	ContentHash      hashing.Hash
	MetadataHash     *hashing.Hash
	NumBytes         uint64
	MtimeSeconds     int64
	MtimeNanoseconds uint32
	DataType         merkle.EntryDataType
	MimeType         string
	Extension        string
	ChunkHashes      []hashing.Hash
	ChunkType        merkle.FileChunkType
	StorageBackend   merkle.FileStorageType
}

// Options configures one commit build.
type Options struct {
	Store      *nodestore.Store
	ParentRoot hashing.Hash // zero means "no parent / empty tree"

	// Staged holds the pending changes to apply; Meta supplies FileMeta for
	// every path whose Status is Added or Modified (Removed needs none).
	Staged []stage.Entry
	Meta   map[string]FileMeta

	BucketSize int // 0 uses merkle.DefaultBucketSize

	Message string
	Author  merkle.Signature
	// Parents is the commit's parent list; normally {current HEAD}, or
	// {base, target} for a merge commit.
	Parents []hashing.Hash
	Now     time.Time
}

// Result is what Build produces.
type Result struct {
	CommitHash hashing.Hash
	RootDir    hashing.Hash
}

// Build groups the staged entries by directory, rebuilds the tree
// bottom-up from the parent root sharing every untouched subtree, and
// writes the resulting CommitNode. Any write error aborts the commit:
// the caller must not advance the branch tip, and any nodes already
// written are tolerated as orphans rather than rolled back.
func Build(opts Options) (Result, error) {
	if len(opts.Staged) == 0 {
		return Result{}, fmt.Errorf("commitbuilder: nothing staged")
	}
	bucketSize := opts.BucketSize
	if bucketSize == 0 {
		bucketSize = merkle.DefaultBucketSize
	}

	byDir := groupByDir(opts.Staged)

	newRoot, _, err := buildDir(opts.Store, opts.ParentRoot, "", byDir, opts.Meta, bucketSize, opts.Now)
	if err != nil {
		return Result{}, fmt.Errorf("commitbuilder: build tree: %w", err)
	}

	commit := &merkle.Node{
		Type: merkle.NodeCommit,
		Commit: &merkle.CommitNode{
			Message: opts.Message,
			Author:  opts.Author,
			Parents: append([]hashing.Hash(nil), opts.Parents...),
			RootDir: newRoot,
		},
	}
	commit.Hash = merkle.ComputeHash(commit)
	if err := opts.Store.PutNode(commit); err != nil {
		return Result{}, fmt.Errorf("commitbuilder: write commit node: %w", err)
	}

	return Result{CommitHash: commit.Hash, RootDir: newRoot}, nil
}

// dirChanges groups the staged entries whose path falls directly in a
// directory (leaf) from those that belong to a subdirectory (recursed by
// first path component).
type dirChanges struct {
	leaves map[string]stage.Entry   // name -> entry, direct child file changes
	subs   map[string][]stage.Entry // first-component name -> entries below it
}

func groupByDir(entries []stage.Entry) map[string]*dirChanges {
	root := &dirChanges{leaves: map[string]stage.Entry{}, subs: map[string][]stage.Entry{}}
	dirs := map[string]*dirChanges{"": root}

	for _, e := range entries {
		insertEntry(dirs, "", e.Path, e)
	}
	return dirs
}

// insertEntry routes e into the dirChanges bucket at dirPath (creating
// buckets for intermediate directories as needed) based on how many path
// components remain under dirPath.
func insertEntry(dirs map[string]*dirChanges, dirPath, relPath string, e stage.Entry) {
	rest := strings.TrimPrefix(relPath, dirPath)
	rest = strings.TrimPrefix(rest, "/")
	parts := strings.SplitN(rest, "/", 2)

	dc := dirs[dirPath]
	if len(parts) == 1 {
		dc.leaves[parts[0]] = e
		return
	}
	sub := parts[0]
	dc.subs[sub] = append(dc.subs[sub], e)

	subPath := path.Join(dirPath, sub)
	if _, ok := dirs[subPath]; !ok {
		dirs[subPath] = &dirChanges{leaves: map[string]stage.Entry{}, subs: map[string][]stage.Entry{}}
	}
	insertEntry(dirs, subPath, relPath, e)
}

// buildDir synthesises the new DirNode (and everything beneath it) for the
// directory at dirPath, given its old hash (zero if it didn't exist) and
// the staged changes touching it or its descendants. It returns the new
// DirNode's hash and its aggregate stats (zero hash + zero aggregate if the
// directory is now empty, signalling to the caller it should be dropped
// from its parent's children).
func buildDir(store *nodestore.Store, oldHash hashing.Hash, dirPath string, dirs map[string]*dirChanges, meta map[string]FileMeta, bucketSize int, now time.Time) (hashing.Hash, dirAgg, error) {
	children, err := loadDirChildren(store, oldHash)
	if err != nil {
		return hashing.Hash{}, dirAgg{}, err
	}

	dc := dirs[dirPath]

	for name, e := range dc.leaves {
		switch e.Status {
		case stage.StatusRemoved:
			delete(children, name)
		case stage.StatusAdded, stage.StatusModified:
			fm, ok := meta[e.Path]
			if !ok {
				return hashing.Hash{}, dirAgg{}, fmt.Errorf("commitbuilder: missing FileMeta for %q", e.Path)
			}
			fileHash, err := writeFileNode(store, name, fm, now)
			if err != nil {
				return hashing.Hash{}, dirAgg{}, err
			}
			children[name] = merkle.VNodeChild{Name: name, Hash: fileHash, Kind: merkle.EntryFile}
		}
	}

	for sub := range dc.subs {
		var oldSubHash hashing.Hash
		if existing, ok := children[sub]; ok && existing.Kind == merkle.EntryDir {
			oldSubHash = existing.Hash
		}
		subPath := path.Join(dirPath, sub)
		newSubHash, agg, err := buildDir(store, oldSubHash, subPath, dirs, meta, bucketSize, now)
		if err != nil {
			return hashing.Hash{}, dirAgg{}, err
		}
		if agg.isEmpty() {
			delete(children, sub)
			continue
		}
		children[sub] = merkle.VNodeChild{Name: sub, Hash: newSubHash, Kind: merkle.EntryDir}
	}

	if len(children) == 0 {
		return hashing.Hash{}, dirAgg{}, nil
	}

	return writeDirNode(store, dirPath, children, bucketSize, now)
}

// dirAgg is the recursive aggregate summed while building a directory.
type dirAgg struct {
	numBytes, numFiles, numEntries uint64
	dataTypes                      map[merkle.EntryDataType]*merkle.DataTypeAgg
}

func (a dirAgg) isEmpty() bool {
	return a.numEntries == 0 && a.numFiles == 0 && a.numBytes == 0
}

func writeFileNode(store *nodestore.Store, name string, fm FileMeta, now time.Time) (hashing.Hash, error) {
	fn := &merkle.Node{
		Type: merkle.NodeFile,
		File: &merkle.FileNode{
			Name:             name,
			ContentHash:      fm.ContentHash,
			MetadataHash:     fm.MetadataHash,
			CombinedHash:     merkle.CombinedHash(fm.ContentHash, fm.MetadataHash),
			NumBytes:         fm.NumBytes,
			MtimeSeconds:     fm.MtimeSeconds,
			MtimeNanoseconds: fm.MtimeNanoseconds,
			DataType:         fm.DataType,
			MimeType:         fm.MimeType,
			Extension:        fm.Extension,
			ChunkHashes:      fm.ChunkHashes,
			ChunkType:        fm.ChunkType,
			StorageBackend:   fm.StorageBackend,
		},
	}
	fn.Hash = merkle.ComputeHash(fn)
	if err := store.PutNode(fn); err != nil {
		return hashing.Hash{}, fmt.Errorf("commitbuilder: write file node %q: %w", name, err)
	}
	return fn.Hash, nil
}

func writeDirNode(store *nodestore.Store, dirPath string, children map[string]merkle.VNodeChild, bucketSize int, now time.Time) (hashing.Hash, dirAgg, error) {
	list := make([]merkle.VNodeChild, 0, len(children))
	for _, c := range children {
		list = append(list, c)
	}
	merkle.SortChildren(list)

	buckets := merkle.BuildVNodeBuckets(list, bucketSize)
	vnodeHashes := make([]hashing.Hash, len(buckets))
	for i, b := range buckets {
		vn := &merkle.Node{Type: merkle.NodeVNode, VNode: b}
		vn.Hash = merkle.ComputeHash(vn)
		if err := store.PutNode(vn); err != nil {
			return hashing.Hash{}, dirAgg{}, fmt.Errorf("commitbuilder: write vnode bucket %d of %q: %w", i, dirPath, err)
		}
		vnodeHashes[i] = vn.Hash
	}

	agg, err := sumAggregates(store, children)
	if err != nil {
		return hashing.Hash{}, dirAgg{}, err
	}

	dataTypes := make([]merkle.DataTypeAgg, 0, len(agg.dataTypes))
	for _, v := range agg.dataTypes {
		dataTypes = append(dataTypes, *v)
	}
	sort.Slice(dataTypes, func(i, j int) bool { return dataTypes[i].Type < dataTypes[j].Type })

	name := path.Base(dirPath)
	if dirPath == "" {
		name = ""
	}
	dir := &merkle.Node{
		Type: merkle.NodeDir,
		Dir: &merkle.DirNode{
			Name:       name,
			NumBytes:   agg.numBytes,
			NumFiles:   agg.numFiles,
			NumEntries: uint64(len(children)),
			DataTypes:  dataTypes,
			Mtime:      now,
			VNodes:     vnodeHashes,
			NumBuckets: uint32(len(buckets)),
		},
	}
	dir.Hash = merkle.ComputeHash(dir)
	if err := store.PutNode(dir); err != nil {
		return hashing.Hash{}, dirAgg{}, fmt.Errorf("commitbuilder: write dir node %q: %w", dirPath, err)
	}

	agg.numEntries = uint64(len(children))
	return dir.Hash, agg, nil
}

// sumAggregates recomputes (num_bytes, num_files, per-data-type counts)
// over children by reading each child's own already-computed aggregate
// (dirs) or file stats (files). num_entries is left zero; writeDirNode
// sets it from the child count.
func sumAggregates(store *nodestore.Store, children map[string]merkle.VNodeChild) (dirAgg, error) {
	agg := dirAgg{dataTypes: map[merkle.EntryDataType]*merkle.DataTypeAgg{}}
	for _, c := range children {
		node, err := store.GetNode(c.Hash)
		if err != nil {
			return dirAgg{}, fmt.Errorf("commitbuilder: load child %q for aggregation: %w", c.Name, err)
		}
		switch node.Type {
		case merkle.NodeFile:
			agg.numBytes += node.File.NumBytes
			agg.numFiles++
			a := agg.dataTypes[node.File.DataType]
			if a == nil {
				a = &merkle.DataTypeAgg{Type: node.File.DataType}
				agg.dataTypes[node.File.DataType] = a
			}
			a.NumBytes += node.File.NumBytes
			a.NumFiles++
		case merkle.NodeDir:
			agg.numBytes += node.Dir.NumBytes
			agg.numFiles += node.Dir.NumFiles
			for _, dt := range node.Dir.DataTypes {
				a := agg.dataTypes[dt.Type]
				if a == nil {
					a = &merkle.DataTypeAgg{Type: dt.Type}
					agg.dataTypes[dt.Type] = a
				}
				a.NumBytes += dt.NumBytes
				a.NumFiles += dt.NumFiles
			}
		}
	}
	return agg, nil
}

// loadDirChildren loads dirHash's direct children into a name-keyed map,
// or returns an empty map if dirHash is zero (no parent directory yet).
func loadDirChildren(store *nodestore.Store, dirHash hashing.Hash) (map[string]merkle.VNodeChild, error) {
	out := map[string]merkle.VNodeChild{}
	if dirHash.IsZero() {
		return out, nil
	}
	node, err := store.GetNode(dirHash)
	if err != nil {
		return nil, fmt.Errorf("commitbuilder: load dir %s: %w", dirHash.ShortString(10), err)
	}
	if node.Type != merkle.NodeDir {
		return nil, fmt.Errorf("commitbuilder: expected dir node at %s, got %s", dirHash.ShortString(10), node.Type)
	}
	for _, vh := range node.Dir.VNodes {
		vnode, err := store.GetNode(vh)
		if err != nil {
			return nil, fmt.Errorf("commitbuilder: load vnode %s: %w", vh.ShortString(10), err)
		}
		for _, c := range vnode.VNode.Children {
			out[c.Name] = c
		}
	}
	return out, nil
}

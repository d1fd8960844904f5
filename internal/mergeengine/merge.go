// Package mergeengine implements the three-way merge: locate the
// lowest common ancestor over the commit DAG, detect fast-forwards, and
// otherwise walk base/target/LCA trees in lockstep to build either a clean
// merge commit or a conflict journal.
package mergeengine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oxenhq/oxen-core/internal/commitbuilder"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/stage"
)

// Conflict records one path whose content diverged on both sides of a merge
// relative to their lowest common ancestor.
type Conflict struct {
	Path    string
	LCAHash hashing.Hash // zero if the path didn't exist at the LCA
	Base    hashing.Hash
	Target  hashing.Hash
}

// Outcome is the result of a merge attempt.
type Outcome struct {
	FastForward bool
	Conflicts   []Conflict
	// MergeCommit is set when the merge completed cleanly (no conflicts and
	// not a fast-forward): a new commit with two parents.
	MergeCommit hashing.Hash
	NewRoot     hashing.Hash
}

// Options bundles what Merge needs.
type Options struct {
	Nodes   *nodestore.Store
	Content *content.Store
	WorkDir string

	Base   hashing.Hash // current branch tip being merged into
	Target hashing.Hash // the branch/commit being merged in

	Author  merkle.Signature
	Message string
	Now     time.Time
}

// Merge runs the three-way merge algorithm described in the package doc. A
// no-op merge (Base == Target, or Target already an ancestor of Base)
// returns an Outcome with FastForward false and no conflicts and no
// MergeCommit — callers should treat a result with both FastForward=false
// and MergeCommit.IsZero() as "nothing to do."
func Merge(opts Options) (Outcome, error) {
	if opts.Base == opts.Target {
		return Outcome{}, nil
	}

	lca, err := lowestCommonAncestor(opts.Nodes, opts.Base, opts.Target)
	if err != nil {
		return Outcome{}, fmt.Errorf("mergeengine: find LCA: %w", err)
	}

	if lca == opts.Target {
		// Target is already an ancestor of base: nothing to do.
		return Outcome{}, nil
	}
	if lca == opts.Base {
		// Base is an ancestor of target: fast-forward.
		root, err := rootDirOf(opts.Nodes, opts.Target)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{FastForward: true, NewRoot: root}, nil
	}

	lcaRoot, err := rootDirOf(opts.Nodes, lca)
	if err != nil {
		return Outcome{}, err
	}
	baseRoot, err := rootDirOf(opts.Nodes, opts.Base)
	if err != nil {
		return Outcome{}, err
	}
	targetRoot, err := rootDirOf(opts.Nodes, opts.Target)
	if err != nil {
		return Outcome{}, err
	}

	lcaDiffBase, err := merkle.DiffTrees(opts.Nodes, lcaRoot, baseRoot)
	if err != nil {
		return Outcome{}, fmt.Errorf("mergeengine: diff lca->base: %w", err)
	}
	lcaDiffTarget, err := merkle.DiffTrees(opts.Nodes, lcaRoot, targetRoot)
	if err != nil {
		return Outcome{}, fmt.Errorf("mergeengine: diff lca->target: %w", err)
	}

	staged, meta, conflicts, err := reconcile(opts, lcaRoot, lcaDiffBase, lcaDiffTarget)
	if err != nil {
		return Outcome{}, err
	}

	if len(conflicts) > 0 {
		if err := writeMergeHead(opts.WorkDir, opts.Target); err != nil {
			return Outcome{}, err
		}
		return Outcome{Conflicts: conflicts}, nil
	}

	if len(staged) == 0 {
		// Both sides changed nothing relative to the LCA that the other
		// side didn't already match: the trees are identical despite
		// Base != Target (e.g. merge(A,A)-equivalent divergent history).
		return Outcome{FastForward: false, NewRoot: baseRoot}, nil
	}

	res, err := commitbuilder.Build(commitbuilder.Options{
		Store:      opts.Nodes,
		ParentRoot: baseRoot,
		Staged:     staged,
		Meta:       meta,
		Message:    opts.Message,
		Author:     opts.Author,
		Parents:    []hashing.Hash{opts.Base, opts.Target},
		Now:        opts.Now,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("mergeengine: build merge commit: %w", err)
	}
	return Outcome{MergeCommit: res.CommitHash, NewRoot: res.RootDir}, nil
}

// reconcile walks the union of paths touched on either side since the LCA:
// unchanged-on-one-side takes the other side; identical changes on both
// sides take either; divergent changes become a Conflict.
func reconcile(opts Options, lcaRoot hashing.Hash, baseDiff, targetDiff *merkle.TreeDiff) ([]stage.Entry, map[string]commitbuilder.FileMeta, []Conflict, error) {
	var staged []stage.Entry
	meta := map[string]commitbuilder.FileMeta{}
	var conflicts []Conflict

	touched := map[string]bool{}
	for p := range baseDiff.Added {
		touched[p] = true
	}
	for p := range baseDiff.Removed {
		touched[p] = true
	}
	for p := range baseDiff.Modified {
		touched[p] = true
	}
	for p := range targetDiff.Added {
		touched[p] = true
	}
	for p := range targetDiff.Removed {
		touched[p] = true
	}
	for p := range targetDiff.Modified {
		touched[p] = true
	}

	for p := range touched {
		baseChanged, baseNew, baseRemoved := sideState(baseDiff, p)
		targetChanged, targetNew, targetRemoved := sideState(targetDiff, p)

		switch {
		case !targetChanged:
			// Only base changed (or neither, impossible since p is touched):
			// base's version already wins since the merge commit's parent
			// root is base itself — nothing to stage.
		case !baseChanged:
			// Only target changed: take target's version.
			if targetRemoved {
				staged = append(staged, stage.Entry{Path: p, Status: stage.StatusRemoved})
			} else {
				staged = append(staged, stage.Entry{Path: p, Status: stage.StatusModified, ContentHash: targetNew.ContentHash})
				meta[p] = fileMetaFrom(targetNew)
			}
		case baseRemoved && targetRemoved:
			// Removed on both sides: already gone from base, nothing to do.
		case baseRemoved != targetRemoved:
			conflicts = append(conflicts, Conflict{Path: p, LCAHash: lcaHash(opts, lcaRoot, p), Base: sideHash(baseNew), Target: sideHash(targetNew)})
		case targetNew.ContentHash == baseNew.ContentHash:
			// Changed identically on both sides: already matches base.
		default:
			conflicts = append(conflicts, Conflict{Path: p, LCAHash: lcaHash(opts, lcaRoot, p), Base: baseNew.ContentHash, Target: targetNew.ContentHash})
			if err := writeConflictMarkers(opts, p, baseNew, targetNew); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return staged, meta, conflicts, nil
}

func sideState(d *merkle.TreeDiff, p string) (changed bool, new *merkle.FileNode, removed bool) {
	if fn, ok := d.Added[p]; ok {
		return true, fn, false
	}
	if _, ok := d.Removed[p]; ok {
		return true, nil, true
	}
	if me, ok := d.Modified[p]; ok {
		return true, me.New, false
	}
	return false, nil, false
}

func sideHash(fn *merkle.FileNode) hashing.Hash {
	if fn == nil {
		return hashing.Hash{}
	}
	return fn.ContentHash
}

// lcaHash resolves p's content hash at the LCA tree, or the zero hash if p
// didn't exist there yet (it was added independently on both sides).
func lcaHash(opts Options, lcaRoot hashing.Hash, p string) hashing.Hash {
	fn, err := merkle.Lookup(opts.Nodes, lcaRoot, p)
	if err != nil {
		return hashing.Hash{}
	}
	return fn.ContentHash
}

func fileMetaFrom(fn *merkle.FileNode) commitbuilder.FileMeta {
	return commitbuilder.FileMeta{
		ContentHash:      fn.ContentHash,
		MetadataHash:     fn.MetadataHash,
		NumBytes:         fn.NumBytes,
		MtimeSeconds:     fn.MtimeSeconds,
		MtimeNanoseconds: fn.MtimeNanoseconds,
		DataType:         fn.DataType,
		MimeType:         fn.MimeType,
		Extension:        fn.Extension,
		ChunkHashes:      fn.ChunkHashes,
		ChunkType:        fn.ChunkType,
		StorageBackend:   fn.StorageBackend,
	}
}

// writeConflictMarkers leaves the working file in a per-data-type conflict
// presentation: text gets diff3-style markers, binary and
// tabular data (no line-oriented diff available here) keep base's content
// and rely on the conflict journal recording both hashes.
func writeConflictMarkers(opts Options, relPath string, base, target *merkle.FileNode) error {
	path := filepath.Join(opts.WorkDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if base.DataType != merkle.DataTypeText || target.DataType != merkle.DataTypeText {
		baseBytes, err := opts.Content.GetBytes(base.ContentHash)
		if err != nil {
			return err
		}
		return os.WriteFile(path, baseBytes, 0o644)
	}

	baseBytes, err := opts.Content.GetBytes(base.ContentHash)
	if err != nil {
		return err
	}
	targetBytes, err := opts.Content.GetBytes(target.ContentHash)
	if err != nil {
		return err
	}

	var out []byte
	out = append(out, []byte("<<<<<<< HEAD\n")...)
	out = append(out, baseBytes...)
	out = append(out, []byte("=======\n")...)
	out = append(out, targetBytes...)
	out = append(out, []byte(">>>>>>> MERGE_HEAD\n")...)
	return os.WriteFile(path, out, 0o644)
}

// writeMergeHead records target as the in-progress merge's other parent
//; commitbuilder's caller (internal/repo) is responsible
// for detecting MERGE_HEAD and passing both parents to the next commit.
func writeMergeHead(workDir string, target hashing.Hash) error {
	path := filepath.Join(workDir, ".oxen", "MERGE_HEAD")
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(target.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadMergeHead returns the pending merge's other parent, if any.
func ReadMergeHead(workDir string) (hashing.Hash, bool, error) {
	data, err := os.ReadFile(filepath.Join(workDir, ".oxen", "MERGE_HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return hashing.Hash{}, false, nil
		}
		return hashing.Hash{}, false, err
	}
	h, err := hashing.Parse(trimNewline(string(data)))
	if err != nil {
		return hashing.Hash{}, false, err
	}
	return h, true, nil
}

// ClearMergeHead removes the in-progress merge marker once the merge commit
// has been written.
func ClearMergeHead(workDir string) error {
	err := os.Remove(filepath.Join(workDir, ".oxen", "MERGE_HEAD"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// lowestCommonAncestor runs a BFS from both commits over parent edges in
// lockstep, returning the first hash reachable from both.
func lowestCommonAncestor(loader merkle.Loader, a, b hashing.Hash) (hashing.Hash, error) {
	if a == b {
		return a, nil
	}

	visitedA := map[hashing.Hash]bool{a: true}
	visitedB := map[hashing.Hash]bool{b: true}
	frontierA := []hashing.Hash{a}
	frontierB := []hashing.Hash{b}

	for len(frontierA) > 0 || len(frontierB) > 0 {
		if len(frontierA) > 0 {
			next, err := stepFrontier(loader, frontierA, visitedA)
			if err != nil {
				return hashing.Hash{}, err
			}
			frontierA = next
			if c, ok := firstCommon(visitedA, visitedB); ok {
				return c, nil
			}
		}
		if len(frontierB) > 0 {
			next, err := stepFrontier(loader, frontierB, visitedB)
			if err != nil {
				return hashing.Hash{}, err
			}
			frontierB = next
			if c, ok := firstCommon(visitedA, visitedB); ok {
				return c, nil
			}
		}
	}
	return hashing.Hash{}, fmt.Errorf("mergeengine: no common ancestor between %s and %s", a.ShortString(10), b.ShortString(10))
}

// stepFrontier expands one BFS layer, marking newly discovered parents in
// visited and returning them as the next frontier.
func stepFrontier(loader merkle.Loader, frontier []hashing.Hash, visited map[hashing.Hash]bool) ([]hashing.Hash, error) {
	var next []hashing.Hash
	for _, h := range frontier {
		node, err := loader.GetNode(h)
		if err != nil {
			return nil, fmt.Errorf("mergeengine: load commit %s: %w", h.ShortString(10), err)
		}
		for _, parent := range node.Commit.Parents {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			next = append(next, parent)
		}
	}
	return next, nil
}

func firstCommon(a, b map[hashing.Hash]bool) (hashing.Hash, bool) {
	for h := range a {
		if b[h] {
			return h, true
		}
	}
	return hashing.Hash{}, false
}

func rootDirOf(nodes merkle.Loader, commitHash hashing.Hash) (hashing.Hash, error) {
	if commitHash.IsZero() {
		return hashing.Hash{}, nil
	}
	node, err := nodes.GetNode(commitHash)
	if err != nil {
		return hashing.Hash{}, fmt.Errorf("mergeengine: load commit %s: %w", commitHash.ShortString(10), err)
	}
	if node.Type != merkle.NodeCommit {
		return hashing.Hash{}, fmt.Errorf("mergeengine: %s is not a commit node", commitHash.ShortString(10))
	}
	return node.Commit.RootDir, nil
}

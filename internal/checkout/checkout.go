// Package checkout implements the checkout engine: materialises
// a target commit's tree into the working directory with minimal writes,
// refusing to clobber local modifications unless forced.
package checkout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

// Target names where checkout should move HEAD: either an attached branch
// (Branch non-empty) or a detached commit hash.
type Target struct {
	Branch string
	Hash   hashing.Hash
}

// Options bundles the stores a Checkout call needs.
type Options struct {
	Nodes   merkle.Loader
	Content *content.Store
	Refs    *refstore.Store
	Index   *wcindex.Index
	WorkDir string
	Force   bool
}

// Result reports what changed.
type Result struct {
	Written []string
	Removed []string
}

// Checkout resolves target, diffs it against the current HEAD tree, and
// applies the minimal set of working-directory writes/deletes, then
// updates HEAD and the working-copy index.
func Checkout(opts Options, target Target) (Result, error) {
	currentRoot, err := currentRootDir(opts.Refs, opts.Nodes)
	if err != nil {
		return Result{}, err
	}

	targetCommitHash, err := resolveTarget(opts.Refs, target)
	if err != nil {
		return Result{}, err
	}
	targetRoot, err := rootDirOf(opts.Nodes, targetCommitHash)
	if err != nil {
		return Result{}, err
	}

	diff, err := merkle.DiffTrees(opts.Nodes, currentRoot, targetRoot)
	if err != nil {
		return Result{}, fmt.Errorf("checkout: diff trees: %w", err)
	}

	if !opts.Force {
		if err := checkNoLocalModifications(opts, diff); err != nil {
			return Result{}, err
		}
	}

	var result Result

	for p := range diff.Removed {
		if err := removeWorkingFile(opts.WorkDir, p); err != nil {
			return result, fmt.Errorf("checkout: remove %q: %w", p, err)
		}
		if err := opts.Index.Remove(p); err != nil {
			return result, fmt.Errorf("checkout: clear index entry %q: %w", p, err)
		}
		result.Removed = append(result.Removed, p)
	}

	for p, fn := range diff.Added {
		if err := materialize(opts, p, fn); err != nil {
			return result, fmt.Errorf("checkout: materialise %q: %w", p, err)
		}
		result.Written = append(result.Written, p)
	}
	for p, me := range diff.Modified {
		if err := materialize(opts, p, me.New); err != nil {
			return result, fmt.Errorf("checkout: materialise %q: %w", p, err)
		}
		result.Written = append(result.Written, p)
	}

	if target.Branch != "" {
		if err := opts.Refs.SetHeadBranch(target.Branch); err != nil {
			return result, fmt.Errorf("checkout: update HEAD: %w", err)
		}
	} else {
		if err := opts.Refs.SetHeadDetached(target.Hash); err != nil {
			return result, fmt.Errorf("checkout: update HEAD: %w", err)
		}
	}

	return result, nil
}

// checkNoLocalModifications aborts before any write if a file that
// checkout would overwrite or delete has diverged from the source tree.
func checkNoLocalModifications(opts Options, diff *merkle.TreeDiff) error {
	check := func(p string, sourceHash hashing.Hash) error {
		path := filepath.Join(opts.WorkDir, filepath.FromSlash(p))
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		h, err := hashing.OfFile(path)
		if err != nil {
			return err
		}
		if h != sourceHash {
			return oxerr.New(oxerr.KindConflict, fmt.Sprintf("local modifications to %q would be overwritten; use force to proceed", p))
		}
		return nil
	}

	for p, fn := range diff.Removed {
		if err := check(p, fn.ContentHash); err != nil {
			return err
		}
	}
	for p, me := range diff.Modified {
		if err := check(p, me.Old.ContentHash); err != nil {
			return err
		}
	}
	return nil
}

func materialize(opts Options, relPath string, fn *merkle.FileNode) error {
	path := filepath.Join(opts.WorkDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		tmp.Close()
		if removeTemp {
			os.Remove(tmpPath)
		}
	}()

	if err := opts.Content.Reconstruct(fn.ContentHash, fn.ChunkHashes, tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	removeTemp = false

	return wcindex.RecordClean(opts.Index, opts.WorkDir, relPath, fn.ContentHash)
}

func removeWorkingFile(workDir, relPath string) error {
	path := filepath.Join(workDir, filepath.FromSlash(relPath))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func currentRootDir(refs *refstore.Store, nodes merkle.Loader) (hashing.Hash, error) {
	if _, err := refs.GetHead(); err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			return hashing.Hash{}, nil
		}
		return hashing.Hash{}, err
	}
	commitHash, err := refs.ResolveHead()
	if err != nil {
		return hashing.Hash{}, err
	}
	return rootDirOf(nodes, commitHash)
}

func resolveTarget(refs *refstore.Store, target Target) (hashing.Hash, error) {
	if target.Branch != "" {
		return refs.GetBranch(target.Branch)
	}
	return target.Hash, nil
}

func rootDirOf(nodes merkle.Loader, commitHash hashing.Hash) (hashing.Hash, error) {
	if commitHash.IsZero() {
		return hashing.Hash{}, nil
	}
	node, err := nodes.GetNode(commitHash)
	if err != nil {
		return hashing.Hash{}, fmt.Errorf("checkout: load commit %s: %w", commitHash.ShortString(10), err)
	}
	if node.Type != merkle.NodeCommit {
		return hashing.Hash{}, fmt.Errorf("checkout: %s is not a commit node", commitHash.ShortString(10))
	}
	return node.Commit.RootDir, nil
}

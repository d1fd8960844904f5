package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/ignore"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/stage"
)

// committedLookup adapts the current HEAD tree into the stager's
// CommittedLookup callback.
func (r *Repository) committedLookup() stage.CommittedLookup {
	return func(relPath string) (hashing.Hash, bool, error) {
		root, err := r.headRootDir()
		if err != nil {
			return hashing.Hash{}, false, err
		}
		fn, err := merkle.Lookup(r.Nodes, root, relPath)
		if err != nil {
			if isNotFoundLookup(err) {
				return hashing.Hash{}, false, nil
			}
			return hashing.Hash{}, false, err
		}
		return fn.ContentHash, true, nil
	}
}

// Add stages path (a file or directory, relative to or rooted in
// WorkDir) for the next commit, honouring .oxenignore.
func (r *Repository) Add(path string) error {
	abs := r.absPath(path)
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("repo: add %q: %w", path, err)
	}
	m := ignore.Load(r.WorkDir)
	lookup := r.committedLookup()

	// Writing into the content store here (rather than only hashing) is
	// what lets commit build its tree from already-stored blobs; large
	// files are chunked the same way a commit-time re-chunk would split
	// them, so the two agree on ContentHash.
	hashFn := func(p string) (hashing.Hash, error) {
		h, _, err := r.Content.ChunkedPut(p)
		return h, err
	}
	if err := stage.AddTree(r.Stage, r.WorkDir, abs, m, hashFn, lookup); err != nil {
		return fmt.Errorf("repo: add %q: %w", path, err)
	}
	return nil
}

// Rm stages path for removal. If recursive, every staged/tracked path
// under it is removed too.
func (r *Repository) Rm(path string, recursive bool) error {
	lookup := r.committedLookup()
	rel, err := r.relPath(path)
	if err != nil {
		return err
	}

	if !recursive {
		return r.Stage.Rm(rel, lookup)
	}

	root, err := r.headRootDir()
	if err != nil {
		return err
	}
	files, err := merkle.WalkFiles(r.Nodes, root)
	if err != nil {
		return err
	}
	removed := false
	for p := range files {
		if p == rel || isUnderDir(p, rel) {
			if err := r.Stage.Rm(p, lookup); err != nil {
				return err
			}
			removed = true
		}
	}
	if !removed {
		return r.Stage.Rm(rel, lookup)
	}
	return nil
}

func isUnderDir(p, dir string) bool {
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}

func (r *Repository) absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.WorkDir, path)
}

func (r *Repository) relPath(path string) (string, error) {
	abs := r.absPath(path)
	rel, err := filepath.Rel(r.WorkDir, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// headRootDir resolves HEAD to its commit's root tree, or the zero hash
// if no commit exists yet (a freshly initialised repository).
func (r *Repository) headRootDir() (hashing.Hash, error) {
	if _, err := r.Refs.GetHead(); err != nil {
		if isNotFoundLookup(err) {
			return hashing.Hash{}, nil
		}
		return hashing.Hash{}, err
	}
	commitHash, err := r.Refs.ResolveHead()
	if err != nil {
		if isNotFoundLookup(err) {
			return hashing.Hash{}, nil
		}
		return hashing.Hash{}, err
	}
	if commitHash.IsZero() {
		return hashing.Hash{}, nil
	}
	n, err := r.Nodes.GetNode(commitHash)
	if err != nil {
		return hashing.Hash{}, err
	}
	return n.Commit.RootDir, nil
}

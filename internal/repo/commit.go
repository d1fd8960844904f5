package repo

import (
	"fmt"
	"time"

	"github.com/oxenhq/oxen-core/internal/commitbuilder"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/mergeengine"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/replock"
	"github.com/oxenhq/oxen-core/internal/stage"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

// Commit builds a new commit from the currently staged changes,
// holding the repository's exclusive lock for the duration. If a merge
// left a MERGE_HEAD marker, the new commit gets both
// HEAD and MERGE_HEAD as parents, and the marker is cleared on success.
func (r *Repository) Commit(message string, author merkle.Signature, now time.Time) (hashing.Hash, error) {
	var commitHash hashing.Hash
	err := replock.WithLock(r.OxenDir, func() error {
		staged, err := r.Stage.All()
		if err != nil {
			return err
		}
		if len(staged) == 0 {
			return oxerr.New(oxerr.KindInvalidArgument, "nothing staged for commit")
		}

		meta := make(map[string]commitbuilder.FileMeta, len(staged))
		for _, e := range staged {
			if e.Status == stage.StatusRemoved {
				continue
			}
			fm, err := r.fileMetaFor(e.Path, e.ContentHash, now)
			if err != nil {
				return err
			}
			meta[e.Path] = fm
		}

		parentRoot, err := r.headRootDir()
		if err != nil {
			return err
		}

		parents, err := r.commitParents()
		if err != nil {
			return err
		}

		res, err := commitbuilder.Build(commitbuilder.Options{
			Store: r.Nodes, ParentRoot: parentRoot, Staged: staged, Meta: meta,
			Message: message, Author: author, Parents: parents, Now: now,
		})
		if err != nil {
			return fmt.Errorf("repo: commit: %w", err)
		}

		branch, attached := r.CurrentBranch()
		if attached {
			if err := r.Refs.SetBranch(branch, res.CommitHash); err != nil {
				return err
			}
		} else {
			if err := r.Refs.SetHeadDetached(res.CommitHash); err != nil {
				return err
			}
		}

		for _, e := range staged {
			if e.Status == stage.StatusRemoved {
				if err := r.Index.Remove(e.Path); err != nil {
					return err
				}
				continue
			}
			if err := wcindex.RecordClean(r.Index, r.WorkDir, e.Path, e.ContentHash); err != nil {
				return err
			}
		}
		if err := r.Stage.Clear(); err != nil {
			return err
		}
		if err := mergeengine.ClearMergeHead(r.WorkDir); err != nil {
			return err
		}

		commitHash = res.CommitHash
		return nil
	})
	return commitHash, err
}

// commitParents returns HEAD's current commit (if any) plus, when a merge
// left MERGE_HEAD set, that commit too — giving the new commit two
// parents, as a merge commit resulting from a conflicted merge requires.
func (r *Repository) commitParents() ([]hashing.Hash, error) {
	var parents []hashing.Hash
	head, err := r.Refs.ResolveHead()
	if err != nil {
		if !isNotFoundLookup(err) {
			return nil, err
		}
	} else if !head.IsZero() {
		parents = append(parents, head)
	}

	mergeParent, ok, err := mergeengine.ReadMergeHead(r.WorkDir)
	if err != nil {
		return nil, err
	}
	if ok {
		parents = append(parents, mergeParent)
	}
	return parents, nil
}

// fileMetaFor stats the working file at relPath to fill in the FileMeta
// fields commitbuilder needs beyond the content hash already computed by
// Add.
func (r *Repository) fileMetaFor(relPath string, contentHash hashing.Hash, now time.Time) (commitbuilder.FileMeta, error) {
	size, mtimeS, mtimeNs, err := r.statWorkingFile(relPath, now)
	if err != nil {
		return commitbuilder.FileMeta{}, err
	}

	chunkHashes, chunkType, err := r.chunkWorkingFile(relPath)
	if err != nil {
		return commitbuilder.FileMeta{}, err
	}

	return commitbuilder.FileMeta{
		ContentHash:      contentHash,
		NumBytes:         uint64(size),
		MtimeSeconds:     mtimeS,
		MtimeNanoseconds: mtimeNs,
		DataType:         sniffDataType(relPath),
		Extension:        extensionOf(relPath),
		ChunkHashes:      chunkHashes,
		ChunkType:        chunkType,
		StorageBackend:   merkle.StorageLocal,
	}, nil
}

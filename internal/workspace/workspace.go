// Package workspace implements the phantom working copy: a model of
// how an external collaborator (a web-based file editor, say) stages
// entries through the stager interface without a real working
// directory. Unlike internal/repo, a Workspace never reads or writes a
// real working directory — Stage takes bytes directly and Commit
// builds straight from the content and reference stores it shares with
// the parent repository: a second .oxen-shaped tree sharing the
// parent's commit history but owning its own staging area.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oxenhq/oxen-core/internal/commitbuilder"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/stage"
)

// Workspace is an isolated staging area against a shared repository's
// commit history: its own Stager, but the parent's Nodes/Content/Refs.
// Two workspaces against the same repository never see each other's
// pending changes, but both commit onto the same branch namespace.
type Workspace struct {
	ID     string
	Branch string

	Nodes   *nodestore.Store
	Content *content.Store
	Refs    *refstore.Store
	stager  *stage.Stager

	mu      sync.Mutex
	pending map[string]pendingMeta
}

// pendingMeta is the FileMeta Stage gathers from the bytes it is handed
// directly, since there is no real file on disk to stat at commit time.
type pendingMeta struct {
	size      int64
	dataType  merkle.EntryDataType
	extension string
}

// Open builds a Workspace with its own staging area under stageDir,
// sharing nodes/content/refs with the repository it belongs to.
func Open(stageDir, branch string, nodes *nodestore.Store, cs *content.Store, refs *refstore.Store) (*Workspace, error) {
	stager, err := stage.New(stageDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: open stage: %w", err)
	}
	return &Workspace{
		ID:      filepath.Base(stageDir),
		Branch:  branch,
		Nodes:   nodes,
		Content: cs,
		Refs:    refs,
		stager:  stager,
		pending: make(map[string]pendingMeta),
	}, nil
}

func (w *Workspace) committedLookup() stage.CommittedLookup {
	return func(relPath string) (hashing.Hash, bool, error) {
		root, err := w.branchRootDir()
		if err != nil {
			return hashing.Hash{}, false, err
		}
		fn, err := merkle.Lookup(w.Nodes, root, relPath)
		if err != nil {
			if oxerr.Is(err, oxerr.KindNotFound) {
				return hashing.Hash{}, false, nil
			}
			return hashing.Hash{}, false, err
		}
		return fn.ContentHash, true, nil
	}
}

func (w *Workspace) branchRootDir() (hashing.Hash, error) {
	tip, err := w.Refs.GetBranch(w.Branch)
	if err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			return hashing.Hash{}, nil
		}
		return hashing.Hash{}, err
	}
	n, err := w.Nodes.GetNode(tip)
	if err != nil {
		return hashing.Hash{}, err
	}
	return n.Commit.RootDir, nil
}

// Stage records path as added or modified with content data, writing it
// straight into the shared content store.
func (w *Workspace) Stage(path string, data []byte) error {
	h, err := w.Content.Put(data)
	if err != nil {
		return fmt.Errorf("workspace: stage %q: %w", path, err)
	}
	if err := w.stager.Add(path, h, w.committedLookup()); err != nil {
		return fmt.Errorf("workspace: stage %q: %w", path, err)
	}

	w.mu.Lock()
	w.pending[path] = pendingMeta{
		size:      int64(len(data)),
		dataType:  sniffDataType(path),
		extension: extensionOf(path),
	}
	w.mu.Unlock()
	return nil
}

// Remove stages path for removal.
func (w *Workspace) Remove(path string) error {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
	return w.stager.Rm(path, w.committedLookup())
}

// Commit builds a new commit from everything staged in this workspace
// and advances Branch to it, the same shape
// internal/repo.Commit uses but against a branch tip instead of an
// attached HEAD, since a workspace has no HEAD of its own.
func (w *Workspace) Commit(message string, author merkle.Signature, now time.Time) (hashing.Hash, error) {
	staged, err := w.stager.All()
	if err != nil {
		return hashing.Hash{}, err
	}
	if len(staged) == 0 {
		return hashing.Hash{}, oxerr.New(oxerr.KindInvalidArgument, "nothing staged for commit")
	}

	w.mu.Lock()
	meta := make(map[string]commitbuilder.FileMeta, len(staged))
	for _, e := range staged {
		if e.Status == stage.StatusRemoved {
			continue
		}
		pm, ok := w.pending[e.Path]
		if !ok {
			w.mu.Unlock()
			return hashing.Hash{}, fmt.Errorf("workspace: commit: missing metadata for %q", e.Path)
		}
		meta[e.Path] = commitbuilder.FileMeta{
			ContentHash:    e.ContentHash,
			NumBytes:       uint64(pm.size),
			MtimeSeconds:   now.Unix(),
			DataType:       pm.dataType,
			Extension:      pm.extension,
			ChunkType:      merkle.ChunkSingle,
			StorageBackend: merkle.StorageLocal,
		}
	}
	w.mu.Unlock()

	parentRoot, err := w.branchRootDir()
	if err != nil {
		return hashing.Hash{}, err
	}

	var parents []hashing.Hash
	if tip, err := w.Refs.GetBranch(w.Branch); err == nil {
		parents = append(parents, tip)
	} else if !oxerr.Is(err, oxerr.KindNotFound) {
		return hashing.Hash{}, err
	}

	res, err := commitbuilder.Build(commitbuilder.Options{
		Store: w.Nodes, ParentRoot: parentRoot, Staged: staged, Meta: meta,
		Message: message, Author: author, Parents: parents, Now: now,
	})
	if err != nil {
		return hashing.Hash{}, fmt.Errorf("workspace: commit: %w", err)
	}

	if err := w.Refs.SetBranch(w.Branch, res.CommitHash); err != nil {
		return hashing.Hash{}, err
	}
	if err := w.stager.Clear(); err != nil {
		return hashing.Hash{}, err
	}

	w.mu.Lock()
	w.pending = make(map[string]pendingMeta)
	w.mu.Unlock()

	return res.CommitHash, nil
}

// sniffDataType classifies path by extension the same way
// internal/repo's classifier does; duplicated here rather than
// imported since a workspace has no dependency on internal/repo.
func sniffDataType(relPath string) merkle.EntryDataType {
	ext := strings.ToLower(extensionOf(relPath))
	switch ext {
	case "txt", "md", "csv", "json", "yaml", "yml", "toml", "go", "py", "rs", "js", "ts", "html", "css":
		return merkle.DataTypeText
	case "tsv", "parquet", "arrow":
		return merkle.DataTypeTabular
	case "png", "jpg", "jpeg", "gif", "bmp", "webp":
		return merkle.DataTypeImage
	case "mp4", "mov", "avi", "mkv":
		return merkle.DataTypeVideo
	case "mp3", "wav", "flac", "ogg":
		return merkle.DataTypeAudio
	default:
		return merkle.DataTypeBinary
	}
}

func extensionOf(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.TrimPrefix(ext, ".")
}

package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/ignore"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/stage"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

// StagedData is the composed view status() returns: the
// stager's pending changes plus whatever the working-copy scan found
// that hasn't been staged yet.
type StagedData struct {
	Added     []string
	Modified  []string
	Removed   []string
	Untracked []string
	Dirs      []string // parent directory of each Untracked path not at the top level
}

// Status composes the working-copy index scan and the stager state
// into a StagedData.
func (r *Repository) Status() (StagedData, error) {
	var out StagedData

	staged, err := r.Stage.All()
	if err != nil {
		return out, err
	}
	stagedPaths := make(map[string]bool, len(staged))
	for _, e := range staged {
		stagedPaths[e.Path] = true
		switch e.Status {
		case stage.StatusAdded:
			out.Added = append(out.Added, e.Path)
		case stage.StatusModified:
			out.Modified = append(out.Modified, e.Path)
		case stage.StatusRemoved:
			out.Removed = append(out.Removed, e.Path)
		}
	}

	m := ignore.Load(r.WorkDir)
	changes, err := wcindex.Scan(r.WorkDir, r.Index, m)
	if err != nil {
		return out, err
	}
	for _, c := range changes {
		if stagedPaths[c.Path] {
			continue
		}
		switch c.Status {
		case wcindex.StatusUntracked:
			out.Untracked = append(out.Untracked, c.Path)
			dir := filepath.Dir(c.Path)
			if dir != "." {
				out.Dirs = append(out.Dirs, dir)
			}
		case wcindex.StatusModified:
			out.Modified = append(out.Modified, c.Path)
		case wcindex.StatusRemoved:
			out.Removed = append(out.Removed, c.Path)
		}
	}

	return out, nil
}

// DiffResult is the outcome of comparing path between two sides: diff
// dispatches on data type.
type DiffResult struct {
	Path     string
	DataType merkle.EntryDataType
	Equal    bool
	// Lines is populated for text diffs: unified-style tagged lines.
	Lines []DiffLine
	// OldBytes/NewBytes carry the raw content for non-text callers that
	// want to present their own view (e.g. a future tabular row diff).
	OldBytes []byte
	NewBytes []byte
}

// DiffLine is one line of a text diff.
type DiffLine struct {
	Tag  byte // ' ' unchanged, '-' removed, '+' added
	Text string
}

// Diff resolves path at two revisions (a commit hash, or the zero hash
// for "current working file") and dispatches by data type.
func (r *Repository) Diff(relPath string, a, b hashing.Hash) (DiffResult, error) {
	oldBytes, oldType, err := r.resolveForDiff(relPath, a)
	if err != nil {
		return DiffResult{}, err
	}
	newBytes, newType, err := r.resolveForDiff(relPath, b)
	if err != nil {
		return DiffResult{}, err
	}

	dt := newType
	if dt == merkle.DataTypeUnknown {
		dt = oldType
	}

	result := DiffResult{Path: relPath, DataType: dt, OldBytes: oldBytes, NewBytes: newBytes}
	if string(oldBytes) == string(newBytes) {
		result.Equal = true
		return result, nil
	}
	if dt == merkle.DataTypeText {
		result.Lines = lineDiff(oldBytes, newBytes)
	}
	return result, nil
}

// resolveForDiff reads path's content at revision rev, or from the
// working directory when rev is the zero hash.
func (r *Repository) resolveForDiff(relPath string, rev hashing.Hash) ([]byte, merkle.EntryDataType, error) {
	if rev.IsZero() {
		data, err := os.ReadFile(filepath.Join(r.WorkDir, filepath.FromSlash(relPath)))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, merkle.DataTypeUnknown, nil
			}
			return nil, merkle.DataTypeUnknown, err
		}
		return data, sniffDataType(relPath), nil
	}

	root, err := r.rootDirOfCommit(rev)
	if err != nil {
		return nil, merkle.DataTypeUnknown, err
	}
	fn, err := merkle.Lookup(r.Nodes, root, relPath)
	if err != nil {
		if isNotFoundLookup(err) {
			return nil, merkle.DataTypeUnknown, nil
		}
		return nil, merkle.DataTypeUnknown, err
	}
	data, err := r.Content.GetBytes(fn.ContentHash)
	if err != nil {
		return nil, merkle.DataTypeUnknown, err
	}
	return data, fn.DataType, nil
}

func (r *Repository) rootDirOfCommit(commitHash hashing.Hash) (hashing.Hash, error) {
	n, err := r.Nodes.GetNode(commitHash)
	if err != nil {
		return hashing.Hash{}, err
	}
	if n.Type != merkle.NodeCommit {
		return hashing.Hash{}, fmt.Errorf("repo: %s is not a commit", commitHash.ShortString(10))
	}
	return n.Commit.RootDir, nil
}

// lineDiff produces a minimal unified tagging between two texts: a plain
// LCS-free line-presence diff, adequate for change-type tags rather than
// a minimal edit script.
func lineDiff(a, b []byte) []DiffLine {
	oldLines := splitLines(a)
	newLines := splitLines(b)

	oldSet := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		oldSet[l]++
	}
	newSet := make(map[string]int, len(newLines))
	for _, l := range newLines {
		newSet[l]++
	}

	var out []DiffLine
	for _, l := range oldLines {
		if newSet[l] > 0 {
			out = append(out, DiffLine{Tag: ' ', Text: l})
			newSet[l]--
		} else {
			out = append(out, DiffLine{Tag: '-', Text: l})
		}
	}
	for _, l := range newLines {
		if oldSet[l] > 0 {
			oldSet[l]--
			continue
		}
		out = append(out, DiffLine{Tag: '+', Text: l})
	}
	return out
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

// Restore implements restore(path, revision?, staged?).
// Without staged, it overwrites the working file with the content at
// revision (default HEAD). With staged, it only removes path from the
// stager, leaving the working file untouched.
func (r *Repository) Restore(relPath string, revision hashing.Hash, staged bool) error {
	if staged {
		lookup := r.committedLookup()
		h, inHead, err := lookup(relPath)
		if err != nil {
			return err
		}
		if inHead {
			// Re-adding at HEAD's hash clears the staged entry.
			return r.Stage.Add(relPath, h, lookup)
		}
		return r.Stage.Rm(relPath, lookup)
	}

	rev := revision
	if rev.IsZero() {
		head, err := r.Refs.ResolveHead()
		if err != nil {
			return fmt.Errorf("repo: restore %q: resolve HEAD: %w", relPath, err)
		}
		rev = head
	}
	root, err := r.rootDirOfCommit(rev)
	if err != nil {
		return fmt.Errorf("repo: restore %q: %w", relPath, err)
	}
	fn, err := merkle.Lookup(r.Nodes, root, relPath)
	if err != nil {
		return fmt.Errorf("repo: restore %q: %w", relPath, err)
	}

	dst := filepath.Join(r.WorkDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
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
	if err := r.Content.Reconstruct(fn.ContentHash, fn.ChunkHashes, tmp); err != nil {
		return fmt.Errorf("repo: restore %q: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return err
	}
	removeTemp = false
	return wcindex.RecordClean(r.Index, r.WorkDir, relPath, fn.ContentHash)
}

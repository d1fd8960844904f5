package wcindex

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/ignore"
)

// Status classifies one working-directory path relative to the index.
type Status int

const (
	StatusUnchanged Status = iota
	StatusModified
	StatusUntracked
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusModified:
		return "modified"
	case StatusUntracked:
		return "untracked"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change pairs a relative path with its scan status.
type Change struct {
	Path   string
	Status Status
}

// Scan walks workDir comparing each file's (size, mtime) against the index,
// re-hashing only when they differ. Paths matched by m are
// skipped entirely, as are directories (index entries only ever name files).
// Index entries whose path is absent from disk are reported StatusRemoved.
func Scan(workDir string, idx *Index, m *ignore.Matcher) ([]Change, error) {
	indexed, err := idx.All()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(indexed))

	var changes []Change
	err = filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(workDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel == ".oxen" || m.IsIgnored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if m.IsIgnored(rel, false) {
			return nil
		}

		seen[rel] = true
		prev, ok := indexed[rel]
		if !ok {
			changes = append(changes, Change{Path: rel, Status: StatusUntracked})
			return nil
		}

		mtime := info.ModTime()
		if info.Size() == prev.Size && mtime.Unix() == prev.MtimeS && int64(mtime.Nanosecond()) == prev.MtimeNs {
			return nil
		}

		h, hashErr := hashing.OfFile(path)
		if hashErr != nil {
			return hashErr
		}
		if h != prev.ContentHash {
			changes = append(changes, Change{Path: rel, Status: StatusModified})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for rel := range indexed {
		if !seen[rel] {
			changes = append(changes, Change{Path: rel, Status: StatusRemoved})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// RecordClean stamps idx with the current on-disk (size, mtime) for relPath
// at contentHash, called after a successful hash/stage/commit so the next
// Scan can skip re-hashing it.
func RecordClean(idx *Index, workDir, relPath string, contentHash hashing.Hash) error {
	info, err := os.Stat(filepath.Join(workDir, filepath.FromSlash(relPath)))
	if err != nil {
		return err
	}
	mtime := info.ModTime()
	return idx.Set(relPath, Entry{
		ContentHash: contentHash,
		Size:        info.Size(),
		MtimeS:      mtime.Unix(),
		MtimeNs:     int64(mtime.Nanosecond()),
	})
}

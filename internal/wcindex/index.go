// Package wcindex is the working-copy index: a per-path record
// of the last-committed content hash, size, and mtime, used so that a status
// scan only re-hashes files whose (size, mtime) changed since the index was
// last written.
package wcindex

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// Entry is the last-known state of one tracked path.
type Entry struct {
	ContentHash hashing.Hash
	Size        int64
	MtimeS      int64
	MtimeNs     int64
}

// Index persists entries under dir/<hex hashing.Of(path)>, one file per path.
type Index struct {
	dir string
	mu  sync.RWMutex
}

// New returns an Index rooted at dir (typically .oxen/index).
func New(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wcindex: create index dir: %w", err)
	}
	return &Index{dir: dir}, nil
}

func (idx *Index) shardPath(relPath string) string {
	h := hashing.Of([]byte(relPath))
	return filepath.Join(idx.dir, h.String())
}

// Get returns the stored entry for relPath, if any.
func (idx *Index) Get(relPath string) (Entry, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	data, err := os.ReadFile(idx.shardPath(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Set records or overwrites the entry for relPath.
func (idx *Index) Set(relPath string, e Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return writeAtomic(idx.shardPath(relPath), encodePathedEntryBytes(relPath, e))
}

// Remove deletes the entry for relPath, if present.
func (idx *Index) Remove(relPath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	err := os.Remove(idx.shardPath(relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pathedEntry is the on-disk record: the original relative path plus its
// entry, so that All() can recover paths without a reverse hash lookup.
type pathedEntry struct {
	Path  string
	Entry Entry
}

// All returns every indexed entry keyed by its relative path. The result
// is a map, so it has no order; SortedPaths gives a lexicographic one.
func (idx *Index) All() (map[string]Entry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entries, err := os.ReadDir(idx.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, err
	}
	out := make(map[string]Entry, len(entries))
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(idx.dir, de.Name()))
		if err != nil {
			continue
		}
		pe, err := decodePathedEntry(data)
		if err != nil {
			continue
		}
		out[pe.Path] = pe.Entry
	}
	return out, nil
}

// SortedPaths is a small helper used by status/diff presentation to produce
// stable output ordering.
func SortedPaths(m map[string]Entry) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func decodeEntry(data []byte) (Entry, error) {
	pe, err := decodePathedEntry(data)
	if err != nil {
		return Entry{}, err
	}
	return pe.Entry, nil
}

func encodePathedEntryBytes(path string, e Entry) []byte {
	pathBytes := []byte(path)
	buf := make([]byte, 0, 4+len(pathBytes)+hashing.Size+8+8+8)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(pathBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, pathBytes...)
	buf = append(buf, e.ContentHash[:]...)
	buf = appendInt64(buf, e.Size)
	buf = appendInt64(buf, e.MtimeS)
	buf = appendInt64(buf, e.MtimeNs)
	return buf
}

func decodePathedEntry(data []byte) (pathedEntry, error) {
	if len(data) < 4 {
		return pathedEntry{}, fmt.Errorf("wcindex: truncated entry")
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if len(data) < int(n) {
		return pathedEntry{}, fmt.Errorf("wcindex: truncated path in entry")
	}
	path := string(data[:n])
	data = data[n:]
	if len(data) != hashing.Size+24 {
		return pathedEntry{}, fmt.Errorf("wcindex: malformed entry body")
	}
	var h hashing.Hash
	copy(h[:], data[:hashing.Size])
	data = data[hashing.Size:]
	size := readInt64(data[0:8])
	mtimeS := readInt64(data[8:16])
	mtimeNs := readInt64(data[16:24])
	return pathedEntry{Path: path, Entry: Entry{ContentHash: h, Size: size, MtimeS: mtimeS, MtimeNs: mtimeNs}}, nil
}

func appendInt64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func readInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
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

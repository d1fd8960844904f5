// Package content implements the deduplicated, content-addressed blob store
// under a repository's versions/ tree, including fixed-size
// chunking for large files.
package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// DefaultChunkSize is the fixed power-of-two fragment size used when
// splitting large files: 16 KiB.
const DefaultChunkSize = 16 * 1024

// Store lays out blobs under root/<hash[0:2]>/<hash[2:]>/data.
type Store struct {
	root      string
	chunkSize int
}

// New returns a Store rooted at dir (typically .oxen/versions). The
// directory is created if missing.
func New(dir string, chunkSize int) (*Store, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content: create store root: %w", err)
	}
	return &Store{root: dir, chunkSize: chunkSize}, nil
}

// ChunkSize returns the configured fixed fragment size.
func (s *Store) ChunkSize() int {
	return s.chunkSize
}

func (s *Store) blobPath(h hashing.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[:2], hex[2:], "data")
}

// Exists reports whether a blob with hash h is already stored.
func (s *Store) Exists(h hashing.Hash) bool {
	_, err := os.Stat(s.blobPath(h))
	return err == nil
}

// Put stores data and returns its hash. Idempotent: storing the same bytes
// twice is a no-op on the second call.
func (s *Store) Put(data []byte) (hashing.Hash, error) {
	h := hashing.Of(data)
	if s.Exists(h) {
		return h, nil
	}
	if err := s.writeAtomic(h, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		return hashing.Hash{}, err
	}
	return h, nil
}

// PutReader streams r into the store, hashing as it writes, and returns the
// resulting hash. The caller does not need to know the hash in advance.
func (s *Store) PutReader(r io.Reader) (hashing.Hash, error) {
	tmp, err := s.createTemp()
	if err != nil {
		return hashing.Hash{}, err
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		tmp.Close()
		if removeTemp {
			os.Remove(tmpPath)
		}
	}()

	h, err := hashing.OfReader(io.TeeReader(r, tmp))
	if err != nil {
		return hashing.Hash{}, fmt.Errorf("content: stream to store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return hashing.Hash{}, fmt.Errorf("content: close temp file: %w", err)
	}

	if s.Exists(h) {
		return h, nil
	}
	dst := s.blobPath(h)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return hashing.Hash{}, fmt.Errorf("content: create blob dir: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return hashing.Hash{}, fmt.Errorf("content: rename temp into place: %w", err)
	}
	removeTemp = false
	return h, nil
}

// Get opens a reader for the blob with hash h.
func (s *Store) Get(h hashing.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.Wrap(oxerr.KindNotFound, fmt.Sprintf("blob %s", h.ShortString(10)), err)
		}
		return nil, oxerr.Wrap(oxerr.KindIO, "open blob", err)
	}
	return f, nil
}

// GetBytes reads a whole blob into memory. Prefer Get for large files.
func (s *Store) GetBytes(h hashing.Hash) ([]byte, error) {
	r, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// writeAtomic writes via a temp file + rename so a reader never observes a
// partially written blob. It stores the bytes under h as given and does not
// re-hash them; the caller computes h from the same bytes it writes.
func (s *Store) writeAtomic(h hashing.Hash, write func(*os.File) error) error {
	tmp, err := s.createTemp()
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

	if err := write(tmp); err != nil {
		return fmt.Errorf("content: write temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("content: close temp blob: %w", err)
	}

	dst := s.blobPath(h)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("content: create blob dir: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("content: rename temp into place: %w", err)
	}
	removeTemp = false
	return nil
}

func (s *Store) createTemp() (*os.File, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("content: create store root: %w", err)
	}
	f, err := os.CreateTemp(s.root, "tmp-*")
	if err != nil {
		return nil, fmt.Errorf("content: create temp file: %w", err)
	}
	return f, nil
}

// CleanStaleTemp removes leftover tmp-* files from interrupted writes. Blobs
// already renamed into place are never touched, but every tmp-* file in the
// store root is removed, including one a concurrent write has not renamed
// yet; that write's rename then fails.
func (s *Store) CleanStaleTemp() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) >= 4 && e.Name()[:4] == "tmp-" {
			os.Remove(filepath.Join(s.root, e.Name()))
		}
	}
	return nil
}

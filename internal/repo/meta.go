package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
)

func (r *Repository) statWorkingFile(relPath string, fallback time.Time) (size int64, mtimeS int64, mtimeNs uint32, err error) {
	abs := filepath.Join(r.WorkDir, filepath.FromSlash(relPath))
	info, statErr := os.Stat(abs)
	if statErr != nil {
		return 0, fallback.Unix(), uint32(fallback.Nanosecond()), statErr
	}
	mtime := info.ModTime()
	return info.Size(), mtime.Unix(), uint32(mtime.Nanosecond()), nil
}

// chunkWorkingFile re-derives relPath's chunk layout via the content
// store (ChunkedPut is idempotent: Add already wrote these same blobs).
func (r *Repository) chunkWorkingFile(relPath string) ([]hashing.Hash, merkle.FileChunkType, error) {
	abs := filepath.Join(r.WorkDir, filepath.FromSlash(relPath))
	_, chunkHashes, err := r.Content.ChunkedPut(abs)
	if err != nil {
		return nil, merkle.ChunkSingle, err
	}
	if len(chunkHashes) == 0 {
		return nil, merkle.ChunkSingle, nil
	}
	return chunkHashes, merkle.ChunkFixedSize, nil
}

func extensionOf(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.TrimPrefix(ext, ".")
}

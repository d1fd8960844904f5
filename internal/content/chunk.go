package content

import (
	"fmt"
	"io"
	"os"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// ChunkedPut stores path's contents, splitting into fixed-size chunks when
// the file exceeds the store's chunk threshold, and returns the whole-file
// hash plus the ordered chunk hashes (empty when unchunked).
func (s *Store) ChunkedPut(path string) (whole hashing.Hash, chunkHashes []hashing.Hash, err error) {
	f, err := os.Open(path)
	if err != nil {
		return hashing.Hash{}, nil, fmt.Errorf("content: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return hashing.Hash{}, nil, fmt.Errorf("content: stat %s: %w", path, err)
	}

	if info.Size() <= int64(s.chunkSize) {
		h, err := s.PutReader(f)
		if err != nil {
			return hashing.Hash{}, nil, err
		}
		return h, nil, nil
	}

	return s.chunkedPutReader(f)
}

// ChunkedPutReader is the streaming-reader form of ChunkedPut, for callers
// (e.g. transfer ingestion) that don't have a local path but know the
// content exceeds the chunk threshold.
func (s *Store) ChunkedPutReader(r io.Reader) (whole hashing.Hash, chunkHashes []hashing.Hash, err error) {
	return s.chunkedPutReader(r)
}

func (s *Store) chunkedPutReader(r io.Reader) (hashing.Hash, []hashing.Hash, error) {
	wholeHasher := hashing.NewStreamHasher()
	var chunks []hashing.Hash
	buf := make([]byte, s.chunkSize)

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			wholeHasher.Write(chunk)
			ch, err := s.Put(chunk)
			if err != nil {
				return hashing.Hash{}, nil, fmt.Errorf("content: store chunk %d: %w", len(chunks), err)
			}
			chunks = append(chunks, ch)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return hashing.Hash{}, nil, fmt.Errorf("content: read chunk %d: %w", len(chunks), readErr)
		}
	}

	return wholeHasher.Sum(), chunks, nil
}

// Reconstruct streams the chunks in order to dst, verifying the final
// concatenation hashes to whole.
func (s *Store) Reconstruct(whole hashing.Hash, chunkHashes []hashing.Hash, dst io.Writer) error {
	if len(chunkHashes) == 0 {
		r, err := s.Get(whole)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(dst, r)
		return err
	}

	hasher := hashing.NewStreamHasher()
	for i, ch := range chunkHashes {
		r, err := s.Get(ch)
		if err != nil {
			return fmt.Errorf("content: reconstruct chunk %d: %w", i, err)
		}
		w := io.MultiWriter(dst, hasher)
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			return fmt.Errorf("content: copy chunk %d: %w", i, err)
		}
	}
	if got := hasher.Sum(); got != whole {
		return fmt.Errorf("content: reconstructed hash %s does not match expected %s", got, whole)
	}
	return nil
}

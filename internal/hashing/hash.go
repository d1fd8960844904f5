// Package hashing provides the content hash used throughout the Merkle tree:
// a 128-bit, non-cryptographic, deterministic digest of bytes, files, and
// composite (typed-field) records.
package hashing

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Size is the width of a Hash in bytes (128 bits).
const Size = 16

// Hash is a fixed 128-bit content digest. It is equality-only: it is used as
// a store key and as a leaf identifier in the tree, never decoded back into
// its inputs.
type Hash [Size]byte

// Zero is the all-zero hash, used as a sentinel for "no parent" / "empty tree".
var Zero Hash

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ShortString returns the first n hex characters of the hash, or the full
// string if shorter. Oxen's CLI output conventionally uses 10.
func (h Hash) ShortString(n int) string {
	s := h.String()
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Parse decodes a lowercase-hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("invalid hash %q: want %d bytes, got %d", s, Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Of hashes a single byte slice.
//
// Two independent 64-bit xxhash passes (body alone, and a fixed salt
// followed by body) are concatenated into 128 bits. The salt must be
// written before the body in the second pass — xxhash is
// position-dependent, and StreamHasher, which assembles the same hash
// across many Write calls, writes the salt once at construction before
// any data arrives. Of and StreamHasher must agree on this ordering or
// the same bytes hash differently depending on whether they arrive as
// one slice or as a stream. This is not cryptographically secure, but
// collisions across any realistic repository are negligible, which is
// all the data model requires.
func Of(data []byte) Hash {
	var h Hash
	lo := xxhash.Sum64(data)
	hi := xxhash.New()
	hi.Write(saltBytes)
	hi.Write(data)
	binary.LittleEndian.PutUint64(h[0:8], lo)
	binary.LittleEndian.PutUint64(h[8:16], hi.Sum64())
	return h
}

// saltBytes distinguishes the high-half hash pass from the low-half pass.
// It is a fixed constant, not a secret: changing it would change every hash
// in every existing repository.
var saltBytes = []byte{0x6f, 0x78, 0x65, 0x6e, 0x2d, 0x68, 0x69}

// OfFile streams a file's contents through Of without loading it fully into
// memory, used for large tabular/binary assets.
func OfFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, err
	}
	defer f.Close()
	return OfReader(f)
}

// OfReader streams r through both hash passes at once.
func OfReader(r io.Reader) (Hash, error) {
	sh := NewStreamHasher()
	buf := bufio.NewReaderSize(r, 256*1024)
	tmp := make([]byte, 256*1024)
	for {
		n, err := buf.Read(tmp)
		if n > 0 {
			sh.Write(tmp[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Hash{}, err
		}
	}
	return sh.Sum(), nil
}

// StreamHasher incrementally computes Of(allWrittenBytes) without buffering
// them, for callers that assemble a hash across many Write calls (e.g.
// reconstructing a chunked file) rather than one contiguous read.
type StreamHasher struct {
	lo *xxhash.Digest
	hi *xxhash.Digest
}

// NewStreamHasher returns a ready-to-write StreamHasher.
func NewStreamHasher() *StreamHasher {
	hi := xxhash.New()
	hi.Write(saltBytes)
	return &StreamHasher{lo: xxhash.New(), hi: hi}
}

// Write feeds p into both hash passes. Never returns an error.
func (s *StreamHasher) Write(p []byte) (int, error) {
	s.lo.Write(p)
	s.hi.Write(p)
	return len(p), nil
}

// Sum finalises the hash of everything written so far.
func (s *StreamHasher) Sum() Hash {
	var h Hash
	binary.LittleEndian.PutUint64(h[0:8], s.lo.Sum64())
	binary.LittleEndian.PutUint64(h[8:16], s.hi.Sum64())
	return h
}

// Composer canonicalises a sequence of typed fields and hashes the result,
// so that node hashes are stable across languages and processes.
// Use a *Composer* to build the field sequence, then call Sum.
type Composer struct {
	buf []byte
}

// NewComposer returns an empty field composer.
func NewComposer() *Composer {
	return &Composer{}
}

// PutUint64 appends a little-endian uint64 field.
func (c *Composer) PutUint64(v uint64) *Composer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	c.buf = append(c.buf, b[:]...)
	return c
}

// PutInt64 appends a little-endian int64 field.
func (c *Composer) PutInt64(v int64) *Composer {
	return c.PutUint64(uint64(v))
}

// PutUint32 appends a little-endian uint32 field.
func (c *Composer) PutUint32(v uint32) *Composer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.buf = append(c.buf, b[:]...)
	return c
}

// PutString appends a length-prefixed (uint32 LE) UTF-8 string field.
func (c *Composer) PutString(s string) *Composer {
	c.PutUint32(uint32(len(s)))
	c.buf = append(c.buf, s...)
	return c
}

// PutBytes appends a length-prefixed (uint32 LE) raw byte field.
func (c *Composer) PutBytes(b []byte) *Composer {
	c.PutUint32(uint32(len(b)))
	c.buf = append(c.buf, b...)
	return c
}

// PutHash appends a child node's hash by value — a lookup key, never a
// structural back-reference.
func (c *Composer) PutHash(h Hash) *Composer {
	c.buf = append(c.buf, h[:]...)
	return c
}

// Sum finalises the composed record and hashes it.
func (c *Composer) Sum() Hash {
	return Of(c.buf)
}

// Bytes returns the canonical byte encoding composed so far, useful when the
// caller also wants to persist the record alongside its hash.
func (c *Composer) Bytes() []byte {
	return c.buf
}

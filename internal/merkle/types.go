// Package merkle defines the typed Merkle tree node variants that make up an
// Oxen commit graph (Commit/Dir/VNode/File/FileChunk), their canonical
// serialisation, and tree-walking/diff helpers.
//
// Every node variant is represented as one tagged struct (Node) with an
// explicit Type discriminator, dispatched by switch rather than dynamic
// interface dispatch: this keeps on-disk serialisation
// unambiguous and avoids a trait-object-shaped hierarchy that doesn't
// translate well to Go.
package merkle

import (
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
)

// NodeType discriminates the variant held by a Node.
type NodeType byte

const (
	// NodeCommit identifies a CommitNode.
	NodeCommit NodeType = iota + 1
	// NodeDir identifies a DirNode.
	NodeDir
	// NodeVNode identifies a VNodeData bucket.
	NodeVNode
	// NodeFile identifies a FileNode.
	NodeFile
	// NodeFileChunk identifies a FileChunkNode.
	NodeFileChunk
)

// String renders the node type name used in CLI output and error messages.
func (t NodeType) String() string {
	switch t {
	case NodeCommit:
		return "commit"
	case NodeDir:
		return "dir"
	case NodeVNode:
		return "vnode"
	case NodeFile:
		return "file"
	case NodeFileChunk:
		return "file_chunk"
	default:
		return "unknown"
	}
}

// EntryDataType classifies a file's content for per-directory aggregates and
// diff dispatch.
type EntryDataType byte

const (
	DataTypeUnknown EntryDataType = iota
	DataTypeText
	DataTypeTabular
	DataTypeImage
	DataTypeVideo
	DataTypeAudio
	DataTypeBinary
)

func (d EntryDataType) String() string {
	switch d {
	case DataTypeText:
		return "text"
	case DataTypeTabular:
		return "tabular"
	case DataTypeImage:
		return "image"
	case DataTypeVideo:
		return "video"
	case DataTypeAudio:
		return "audio"
	case DataTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// FileChunkType records how a file's bytes are split in the store.
type FileChunkType byte

const (
	// ChunkSingle means the file is stored as exactly one blob (its content hash).
	ChunkSingle FileChunkType = iota
	// ChunkFixedSize means the file is split into fixed-size FileChunkNodes.
	ChunkFixedSize
)

// FileStorageType records where a file's bytes live.
type FileStorageType byte

const (
	// StorageLocal means the blob lives in this repository's content store.
	StorageLocal FileStorageType = iota
	// StorageRemote means the blob must be fetched from a remote before read.
	StorageRemote
)

// Signature identifies a commit's author/committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitNode is the root of a revision: a message, authorship, zero or more
// parents, and a single root DirNode.
type CommitNode struct {
	Message   string
	Author    Signature
	Parents   []hashing.Hash
	RootDir   hashing.Hash
}

// DataTypeAgg is a per-EntryDataType aggregate: bytes and file count.
type DataTypeAgg struct {
	Type     EntryDataType
	NumBytes uint64
	NumFiles uint64
}

// DirNode is an internal tree directory. Its children are always VNodes
// (never FileNodes or DirNodes directly) so that edits touch O(log N) nodes
// instead of the whole directory.
type DirNode struct {
	Name       string
	NumBytes   uint64 // recursive
	NumFiles   uint64 // recursive
	NumEntries uint64 // direct children across all vnodes
	DataTypes  []DataTypeAgg
	LastCommit hashing.Hash
	Mtime      time.Time

	// VNodes holds the child VNode hashes in ascending bucket-index order.
	// Each VNode hash is part of the DirNode's hash input (see hashDir),
	// and a VNode hash in turn covers its bucket's contents.
	VNodes     []hashing.Hash
	NumBuckets uint32
}

// DirEntryKind distinguishes a VNode child that is itself a directory from
// one that is a file.
type DirEntryKind byte

const (
	EntryFile DirEntryKind = iota
	EntryDir
)

// VNodeChild is one (name, hash, kind) triple bucketed under a VNode.
type VNodeChild struct {
	Name string
	Hash hashing.Hash
	Kind DirEntryKind
}

// VNodeData is an internal bucketing node: a bounded-size, canonically
// ordered set of (name → child) pairs, used so that a single-file edit
// rewrites one VNode plus the spine to the root instead of an entire
// directory.
type VNodeData struct {
	BucketIndex uint32
	NumBuckets  uint32
	Children    []VNodeChild // sorted ascending by Name
}

// FileNode describes one tracked file.
type FileNode struct {
	Name string

	// ContentHash is the whole-file hash; also used as the sole chunk
	// reference when ChunkType is ChunkSingle.
	ContentHash hashing.Hash

	// MetadataHash, if present, hashes any auxiliary metadata blob
	// (schema, format probe results) associated with the file. It is
	// produced by collaborators out of this core's scope and merely
	// carried here.
	MetadataHash *hashing.Hash

	// CombinedHash hashes (ContentHash, MetadataHash): a file's identity
	// in the tree, so that metadata-only edits change the node hash
	// without re-hashing file content.
	CombinedHash hashing.Hash

	NumBytes         uint64
	MtimeSeconds     int64
	MtimeNanoseconds uint32

	DataType  EntryDataType
	MimeType  string
	Extension string

	ChunkHashes    []hashing.Hash // empty unless ChunkType == ChunkFixedSize
	ChunkType      FileChunkType
	StorageBackend FileStorageType

	LastCommit hashing.Hash
}

// FileChunkNode is a fragment of a file split by fixed-size chunking
//. Its hash is the hash of Data.
type FileChunkNode struct {
	Data []byte
}

// Node is the tagged variant over all five node kinds. Exactly one of the
// pointer fields matching Type is non-nil.
type Node struct {
	Type NodeType
	Hash hashing.Hash

	Commit    *CommitNode
	Dir       *DirNode
	VNode     *VNodeData
	File      *FileNode
	FileChunk *FileChunkNode
}

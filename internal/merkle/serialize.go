package merkle

import (
	"fmt"
	"time"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/vmihailenco/msgpack/v5"
)

// on-disk wire structs, msgpack-tagged with short field names.

type wireSignature struct {
	Name  string `msgpack:"n"`
	Email string `msgpack:"e"`
	When  int64  `msgpack:"w"` // unix nanoseconds
}

type wireCommit struct {
	Message string         `msgpack:"m"`
	Author  wireSignature  `msgpack:"a"`
	Parents [][]byte       `msgpack:"p"`
	RootDir []byte         `msgpack:"r"`
}

type wireDataTypeAgg struct {
	Type     byte   `msgpack:"t"`
	NumBytes uint64 `msgpack:"b"`
	NumFiles uint64 `msgpack:"f"`
}

type wireDir struct {
	Name       string            `msgpack:"n"`
	NumBytes   uint64            `msgpack:"nb"`
	NumFiles   uint64            `msgpack:"nf"`
	NumEntries uint64            `msgpack:"ne"`
	DataTypes  []wireDataTypeAgg `msgpack:"dt"`
	LastCommit []byte            `msgpack:"lc"`
	MtimeUnix  int64             `msgpack:"mt"`
	VNodes     [][]byte          `msgpack:"vn"`
	NumBuckets uint32            `msgpack:"nbk"`
}

type wireVNodeChild struct {
	Name string `msgpack:"n"`
	Hash []byte `msgpack:"h"`
	Kind byte   `msgpack:"k"`
}

type wireVNode struct {
	BucketIndex uint32           `msgpack:"bi"`
	NumBuckets  uint32           `msgpack:"nb"`
	Children    []wireVNodeChild `msgpack:"c"`
}

type wireFile struct {
	Name             string   `msgpack:"n"`
	ContentHash      []byte   `msgpack:"ch"`
	MetadataHash     []byte   `msgpack:"mh,omitempty"`
	CombinedHash     []byte   `msgpack:"cb"`
	NumBytes         uint64   `msgpack:"nb"`
	MtimeSeconds     int64    `msgpack:"ms"`
	MtimeNanoseconds uint32   `msgpack:"mn"`
	DataType         byte     `msgpack:"dt"`
	MimeType         string   `msgpack:"mt"`
	Extension        string   `msgpack:"ex"`
	ChunkHashes      [][]byte `msgpack:"chh"`
	ChunkType        byte     `msgpack:"ct"`
	StorageBackend   byte     `msgpack:"sb"`
	LastCommit       []byte   `msgpack:"lc"`
}

type wireFileChunk struct {
	Data []byte `msgpack:"d"`
}

// Serialize produces the self-describing on-disk record for n: a one-byte
// type tag followed by the msgpack-encoded payload.
func Serialize(n *Node) ([]byte, error) {
	var payload interface{}
	switch n.Type {
	case NodeCommit:
		payload = toWireCommit(n.Commit)
	case NodeDir:
		payload = toWireDir(n.Dir)
	case NodeVNode:
		payload = toWireVNode(n.VNode)
	case NodeFile:
		payload = toWireFile(n.File)
	case NodeFileChunk:
		payload = wireFileChunk{Data: n.FileChunk.Data}
	default:
		return nil, fmt.Errorf("merkle: unknown node type %d", n.Type)
	}

	body, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("merkle: encode %s node: %w", n.Type, err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(n.Type))
	out = append(out, body...)
	return out, nil
}

// Deserialize parses a record produced by Serialize, recomputing Hash from
// the decoded fields (not trusting a stored hash blindly).
func Deserialize(data []byte) (*Node, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("merkle: empty node record")
	}
	t := NodeType(data[0])
	body := data[1:]

	n := &Node{Type: t}
	switch t {
	case NodeCommit:
		var w wireCommit
		if err := msgpack.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("merkle: decode commit: %w", err)
		}
		c, err := fromWireCommit(w)
		if err != nil {
			return nil, err
		}
		n.Commit = c
	case NodeDir:
		var w wireDir
		if err := msgpack.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("merkle: decode dir: %w", err)
		}
		d, err := fromWireDir(w)
		if err != nil {
			return nil, err
		}
		n.Dir = d
	case NodeVNode:
		var w wireVNode
		if err := msgpack.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("merkle: decode vnode: %w", err)
		}
		v, err := fromWireVNode(w)
		if err != nil {
			return nil, err
		}
		n.VNode = v
	case NodeFile:
		var w wireFile
		if err := msgpack.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("merkle: decode file: %w", err)
		}
		f, err := fromWireFile(w)
		if err != nil {
			return nil, err
		}
		n.File = f
	case NodeFileChunk:
		var w wireFileChunk
		if err := msgpack.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("merkle: decode file chunk: %w", err)
		}
		n.FileChunk = &FileChunkNode{Data: w.Data}
	default:
		return nil, fmt.Errorf("merkle: unrecognized node type byte %d", data[0])
	}

	n.Hash = ComputeHash(n)
	return n, nil
}

func toWireCommit(c *CommitNode) wireCommit {
	parents := make([][]byte, len(c.Parents))
	for i, p := range c.Parents {
		parents[i] = append([]byte(nil), p[:]...)
	}
	root := append([]byte(nil), c.RootDir[:]...)
	return wireCommit{
		Message: c.Message,
		Author: wireSignature{
			Name:  c.Author.Name,
			Email: c.Author.Email,
			When:  c.Author.When.UnixNano(),
		},
		Parents: parents,
		RootDir: root,
	}
}

func fromWireCommit(w wireCommit) (*CommitNode, error) {
	root, err := hashFromBytes(w.RootDir)
	if err != nil {
		return nil, fmt.Errorf("merkle: commit root dir: %w", err)
	}
	parents := make([]hashing.Hash, len(w.Parents))
	for i, p := range w.Parents {
		h, err := hashFromBytes(p)
		if err != nil {
			return nil, fmt.Errorf("merkle: commit parent %d: %w", i, err)
		}
		parents[i] = h
	}
	return &CommitNode{
		Message: w.Message,
		Author: Signature{
			Name:  w.Author.Name,
			Email: w.Author.Email,
			When:  time.Unix(0, w.Author.When).UTC(),
		},
		Parents: parents,
		RootDir: root,
	}, nil
}

func toWireDir(d *DirNode) wireDir {
	aggs := make([]wireDataTypeAgg, len(d.DataTypes))
	for i, a := range d.DataTypes {
		aggs[i] = wireDataTypeAgg{Type: byte(a.Type), NumBytes: a.NumBytes, NumFiles: a.NumFiles}
	}
	vnodes := make([][]byte, len(d.VNodes))
	for i, v := range d.VNodes {
		vnodes[i] = append([]byte(nil), v[:]...)
	}
	lastCommit := append([]byte(nil), d.LastCommit[:]...)
	return wireDir{
		Name:       d.Name,
		NumBytes:   d.NumBytes,
		NumFiles:   d.NumFiles,
		NumEntries: d.NumEntries,
		DataTypes:  aggs,
		LastCommit: lastCommit,
		MtimeUnix:  d.Mtime.UnixNano(),
		VNodes:     vnodes,
		NumBuckets: d.NumBuckets,
	}
}

func fromWireDir(w wireDir) (*DirNode, error) {
	aggs := make([]DataTypeAgg, len(w.DataTypes))
	for i, a := range w.DataTypes {
		aggs[i] = DataTypeAgg{Type: EntryDataType(a.Type), NumBytes: a.NumBytes, NumFiles: a.NumFiles}
	}
	vnodes := make([]hashing.Hash, len(w.VNodes))
	for i, v := range w.VNodes {
		h, err := hashFromBytes(v)
		if err != nil {
			return nil, fmt.Errorf("merkle: dir vnode %d: %w", i, err)
		}
		vnodes[i] = h
	}
	lastCommit, err := hashFromBytes(w.LastCommit)
	if err != nil {
		return nil, fmt.Errorf("merkle: dir last commit: %w", err)
	}
	return &DirNode{
		Name:       w.Name,
		NumBytes:   w.NumBytes,
		NumFiles:   w.NumFiles,
		NumEntries: w.NumEntries,
		DataTypes:  aggs,
		LastCommit: lastCommit,
		Mtime:      time.Unix(0, w.MtimeUnix).UTC(),
		VNodes:     vnodes,
		NumBuckets: w.NumBuckets,
	}, nil
}

func toWireVNode(v *VNodeData) wireVNode {
	children := make([]wireVNodeChild, len(v.Children))
	for i, c := range v.Children {
		children[i] = wireVNodeChild{Name: c.Name, Hash: append([]byte(nil), c.Hash[:]...), Kind: byte(c.Kind)}
	}
	return wireVNode{BucketIndex: v.BucketIndex, NumBuckets: v.NumBuckets, Children: children}
}

func fromWireVNode(w wireVNode) (*VNodeData, error) {
	children := make([]VNodeChild, len(w.Children))
	for i, c := range w.Children {
		h, err := hashFromBytes(c.Hash)
		if err != nil {
			return nil, fmt.Errorf("merkle: vnode child %d: %w", i, err)
		}
		children[i] = VNodeChild{Name: c.Name, Hash: h, Kind: DirEntryKind(c.Kind)}
	}
	return &VNodeData{BucketIndex: w.BucketIndex, NumBuckets: w.NumBuckets, Children: children}, nil
}

func toWireFile(f *FileNode) wireFile {
	chunks := make([][]byte, len(f.ChunkHashes))
	for i, c := range f.ChunkHashes {
		chunks[i] = append([]byte(nil), c[:]...)
	}
	w := wireFile{
		Name:             f.Name,
		ContentHash:      append([]byte(nil), f.ContentHash[:]...),
		CombinedHash:     append([]byte(nil), f.CombinedHash[:]...),
		NumBytes:         f.NumBytes,
		MtimeSeconds:     f.MtimeSeconds,
		MtimeNanoseconds: f.MtimeNanoseconds,
		DataType:         byte(f.DataType),
		MimeType:         f.MimeType,
		Extension:        f.Extension,
		ChunkHashes:      chunks,
		ChunkType:        byte(f.ChunkType),
		StorageBackend:   byte(f.StorageBackend),
		LastCommit:       append([]byte(nil), f.LastCommit[:]...),
	}
	if f.MetadataHash != nil {
		w.MetadataHash = append([]byte(nil), (*f.MetadataHash)[:]...)
	}
	return w
}

func fromWireFile(w wireFile) (*FileNode, error) {
	contentHash, err := hashFromBytes(w.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("merkle: file content hash: %w", err)
	}
	combinedHash, err := hashFromBytes(w.CombinedHash)
	if err != nil {
		return nil, fmt.Errorf("merkle: file combined hash: %w", err)
	}
	lastCommit, err := hashFromBytes(w.LastCommit)
	if err != nil {
		return nil, fmt.Errorf("merkle: file last commit: %w", err)
	}
	chunks := make([]hashing.Hash, len(w.ChunkHashes))
	for i, c := range w.ChunkHashes {
		h, err := hashFromBytes(c)
		if err != nil {
			return nil, fmt.Errorf("merkle: file chunk %d: %w", i, err)
		}
		chunks[i] = h
	}
	var metadataHash *hashing.Hash
	if len(w.MetadataHash) > 0 {
		h, err := hashFromBytes(w.MetadataHash)
		if err != nil {
			return nil, fmt.Errorf("merkle: file metadata hash: %w", err)
		}
		metadataHash = &h
	}
	return &FileNode{
		Name:             w.Name,
		ContentHash:      contentHash,
		MetadataHash:     metadataHash,
		CombinedHash:     combinedHash,
		NumBytes:         w.NumBytes,
		MtimeSeconds:     w.MtimeSeconds,
		MtimeNanoseconds: w.MtimeNanoseconds,
		DataType:         EntryDataType(w.DataType),
		MimeType:         w.MimeType,
		Extension:        w.Extension,
		ChunkHashes:      chunks,
		ChunkType:        FileChunkType(w.ChunkType),
		StorageBackend:   FileStorageType(w.StorageBackend),
		LastCommit:       lastCommit,
	}, nil
}

func hashFromBytes(b []byte) (hashing.Hash, error) {
	var h hashing.Hash
	if len(b) == 0 {
		return h, nil
	}
	if len(b) != hashing.Size {
		return h, fmt.Errorf("wrong hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

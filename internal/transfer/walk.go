package transfer

import (
	"context"
	"fmt"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
)

// planUpload walks root and every node transitively reachable from it,
// skipping any subtree the remote already reports as present, and
// returns the nodes the remote lacks in parents-last order: every node
// appears after all of its children, so uploading in this order never
// exposes a node whose children are still missing.
func planUpload(ctx context.Context, nodes merkle.Loader, remote RemoteClient, root hashing.Hash) ([]hashing.Hash, error) {
	if root.IsZero() {
		return nil, nil
	}

	var order []hashing.Hash
	visited := map[hashing.Hash]bool{}

	var visit func(h hashing.Hash) error
	visit = func(h hashing.Hash) error {
		if visited[h] {
			return nil
		}
		visited[h] = true

		present, err := remote.MissingNodes(ctx, []hashing.Hash{h})
		if err != nil {
			return err
		}
		if len(present) == 0 {
			// remote already has h, and therefore (by the immutability
			// and closure invariants) everything beneath it too.
			return nil
		}

		n, err := nodes.GetNode(h)
		if err != nil {
			return fmt.Errorf("transfer: load node %s: %w", fmtHash(h), err)
		}
		for _, child := range childrenOf(n) {
			if err := visit(child); err != nil {
				return err
			}
		}
		order = append(order, h)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// childrenOf returns the immediate child node hashes of n, dispatching
// on its variant the same way nodestore's children index does.
func childrenOf(n *merkle.Node) []hashing.Hash {
	switch n.Type {
	case merkle.NodeCommit:
		out := append([]hashing.Hash{}, n.Commit.Parents...)
		if !n.Commit.RootDir.IsZero() {
			out = append(out, n.Commit.RootDir)
		}
		return out
	case merkle.NodeDir:
		return append([]hashing.Hash{}, n.Dir.VNodes...)
	case merkle.NodeVNode:
		out := make([]hashing.Hash, 0, len(n.VNode.Children))
		for _, c := range n.VNode.Children {
			out = append(out, c.Hash)
		}
		return out
	case merkle.NodeFile:
		if n.File.ChunkType == merkle.ChunkFixedSize {
			return append([]hashing.Hash{}, n.File.ChunkHashes...)
		}
		return nil
	default:
		return nil
	}
}

// blobsOf returns the content-addressed blob hashes a FileNode
// references: either its single content hash, or every chunk hash for
// a fixed-size chunked file.
func blobsOf(f *merkle.FileNode) []hashing.Hash {
	if f.ChunkType == merkle.ChunkFixedSize {
		return f.ChunkHashes
	}
	return []hashing.Hash{f.ContentHash}
}

// fileNodesIn collects every FileNode reachable from the given node
// list (which planUpload/planDownload already resolved), for blob
// upload/download after the node set itself is transferred.
func fileNodesIn(nodes merkle.Loader, hashes []hashing.Hash) ([]*merkle.FileNode, error) {
	var out []*merkle.FileNode
	for _, h := range hashes {
		n, err := nodes.GetNode(h)
		if err != nil {
			return nil, err
		}
		if n.Type == merkle.NodeFile {
			out = append(out, n.File)
		}
	}
	return out, nil
}

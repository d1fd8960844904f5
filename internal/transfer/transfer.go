// Package transfer implements the push/pull/fetch/clone protocol:
// enumerating nodes and blobs missing on one side of a
// client/remote pair via tree walk (skipping subtrees the other side
// already has), streaming them with resumable chunked upload, and
// advancing a remote branch with an optimistic compare-and-swap.
package transfer

import (
	"context"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// RepoInfo is the metadata a remote reports for a repository.
type RepoInfo struct {
	MinVersion    int
	DefaultBranch string
	Empty         bool
}

// RemoteClient is the client-side view of a remote repository: the two
// capabilities requires (has_node, has_blob) plus the node,
// blob, and branch operations layered on top of them. Both the HTTP
// implementation (httpremote.go) and the in-process implementation used
// for tests and same-host remotes (localremote.go) satisfy it, so the
// push/fetch algorithms below never depend on transport.
type RemoteClient interface {
	RepoInfo(ctx context.Context) (RepoInfo, error)

	// GetBranch returns the remote's current tip for branch, or
	// ok=false if the branch does not exist there yet.
	GetBranch(ctx context.Context, branch string) (h hashing.Hash, ok bool, err error)

	// SetBranch advances branch to newHash, but only if the remote's
	// current value equals expected (optimistic CAS, step
	// 5). A zero expected means "branch must not exist yet".
	SetBranch(ctx context.Context, branch string, expected, newHash hashing.Hash) error

	// MissingNodes returns the subset of hashes the remote does not
	// have, preserving no particular order.
	MissingNodes(ctx context.Context, hashes []hashing.Hash) ([]hashing.Hash, error)

	PutNode(ctx context.Context, h hashing.Hash, data []byte) error
	GetNode(ctx context.Context, h hashing.Hash) ([]byte, error)

	HasBlob(ctx context.Context, h hashing.Hash) (bool, error)

	// PutBlobPart uploads one part of a resumable chunked blob upload
	// and returns the ETag the remote assigns it.
	PutBlobPart(ctx context.Context, h hashing.Hash, partIndex int, data []byte) (etag string, err error)
	// CompleteBlob finalises the blob identified by h from its parts,
	// in order, identified by the ETags PutBlobPart returned.
	CompleteBlob(ctx context.Context, h hashing.Hash, etags []string) error
	GetBlob(ctx context.Context, h hashing.Hash) ([]byte, error)
}

// ErrNonFastForward is surfaced when a branch CAS loses a race: the
// remote's branch moved since the client last observed it.
var ErrNonFastForward = oxerr.New(oxerr.KindConflict, "non-fast-forward: remote branch moved")

// PartSize is the size of one resumable-upload part.
const PartSize = 8 << 20 // 8 MiB

func partCount(size int, partSize int) int {
	if size == 0 {
		return 1
	}
	n := size / partSize
	if size%partSize != 0 {
		n++
	}
	return n
}

func partBounds(size, partSize, i int) (start, end int) {
	start = i * partSize
	end = start + partSize
	if end > size {
		end = size
	}
	return start, end
}

func fmtHash(h hashing.Hash) string { return h.ShortString(10) }

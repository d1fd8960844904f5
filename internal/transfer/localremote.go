package transfer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
)

// LocalRemote implements RemoteClient directly against another
// repository's stores, with no network hop. It is used to test the
// push/fetch algorithms in-process, and can equally back an
// oxen-server process that happens to be co-located with its client.
type LocalRemote struct {
	Nodes         *nodestore.Store
	Content       *content.Store
	Refs          *refstore.Store
	MinVersion    int
	DefaultBranch string

	mu    sync.Mutex
	parts map[hashing.Hash]map[int][]byte
}

// NewLocalRemote wraps an existing node/content/ref store trio.
func NewLocalRemote(nodes *nodestore.Store, cs *content.Store, refs *refstore.Store) *LocalRemote {
	return &LocalRemote{Nodes: nodes, Content: cs, Refs: refs, MinVersion: 1, DefaultBranch: "main", parts: map[hashing.Hash]map[int][]byte{}}
}

func (r *LocalRemote) RepoInfo(ctx context.Context) (RepoInfo, error) {
	branches, err := r.Refs.ListBranches()
	if err != nil {
		return RepoInfo{}, err
	}
	return RepoInfo{MinVersion: r.MinVersion, DefaultBranch: r.DefaultBranch, Empty: len(branches) == 0}, nil
}

func (r *LocalRemote) GetBranch(ctx context.Context, branch string) (hashing.Hash, bool, error) {
	h, err := r.Refs.GetBranch(branch)
	if err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			return hashing.Hash{}, false, nil
		}
		return hashing.Hash{}, false, err
	}
	return h, true, nil
}

func (r *LocalRemote) SetBranch(ctx context.Context, branch string, expected, newHash hashing.Hash) error {
	current, err := r.Refs.GetBranch(branch)
	if err != nil {
		if !oxerr.Is(err, oxerr.KindNotFound) {
			return err
		}
		current = hashing.Hash{}
	}
	if current != expected {
		return ErrNonFastForward
	}
	return r.Refs.SetBranch(branch, newHash)
}

func (r *LocalRemote) MissingNodes(ctx context.Context, hashes []hashing.Hash) ([]hashing.Hash, error) {
	var missing []hashing.Hash
	for _, h := range hashes {
		if !r.Nodes.HasNode(h) {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

func (r *LocalRemote) PutNode(ctx context.Context, h hashing.Hash, data []byte) error {
	n, err := merkle.Deserialize(data)
	if err != nil {
		return oxerr.Wrap(oxerr.KindCorruptStore, fmt.Sprintf("node %s", fmtHash(h)), err)
	}
	return r.Nodes.PutNode(n)
}

func (r *LocalRemote) GetNode(ctx context.Context, h hashing.Hash) ([]byte, error) {
	n, err := r.Nodes.GetNode(h)
	if err != nil {
		return nil, err
	}
	return merkle.Serialize(n)
}

func (r *LocalRemote) HasBlob(ctx context.Context, h hashing.Hash) (bool, error) {
	return r.Content.Exists(h), nil
}

func (r *LocalRemote) PutBlobPart(ctx context.Context, h hashing.Hash, partIndex int, data []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parts[h] == nil {
		r.parts[h] = map[int][]byte{}
	}
	buf := append([]byte(nil), data...)
	r.parts[h][partIndex] = buf
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:]), nil
}

func (r *LocalRemote) CompleteBlob(ctx context.Context, h hashing.Hash, etags []string) error {
	r.mu.Lock()
	parts := r.parts[h]
	delete(r.parts, h)
	r.mu.Unlock()

	var data []byte
	for i := range etags {
		p, ok := parts[i]
		if !ok {
			return oxerr.New(oxerr.KindInvalidArgument, fmt.Sprintf("missing part %d for blob %s", i, fmtHash(h)))
		}
		data = append(data, p...)
	}
	got, err := r.Content.Put(data)
	if err != nil {
		return err
	}
	if got != h {
		return oxerr.New(oxerr.KindCorruptStore, fmt.Sprintf("assembled blob hashes to %s, expected %s", got.ShortString(10), fmtHash(h)))
	}
	return nil
}

func (r *LocalRemote) GetBlob(ctx context.Context, h hashing.Hash) ([]byte, error) {
	return r.Content.GetBytes(h)
}

package transfer

import (
	"context"
	"fmt"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
)

// commitsToSend walks the parent chain from tip, stopping at remoteTip
// or at any commit the remote already reports having, and returns the
// set to upload ordered oldest-first so each commit's parents are
// already present by the time it is processed.
func commitsToSend(ctx context.Context, nodes merkle.Loader, remote RemoteClient, tip, remoteTip hashing.Hash) ([]hashing.Hash, error) {
	if tip.IsZero() || tip == remoteTip {
		return nil, nil
	}

	var toSend []hashing.Hash
	seen := map[hashing.Hash]bool{}

	var walk func(h hashing.Hash) error
	walk = func(h hashing.Hash) error {
		if h.IsZero() || h == remoteTip || seen[h] {
			return nil
		}
		present, err := remote.MissingNodes(ctx, []hashing.Hash{h})
		if err != nil {
			return err
		}
		if len(present) == 0 {
			return nil
		}
		seen[h] = true

		n, err := nodes.GetNode(h)
		if err != nil {
			return fmt.Errorf("transfer: load commit %s: %w", fmtHash(h), err)
		}
		if n.Type != merkle.NodeCommit {
			return fmt.Errorf("transfer: %s is not a commit", fmtHash(h))
		}
		for _, p := range n.Commit.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		toSend = append(toSend, h)
		return nil
	}

	if err := walk(tip); err != nil {
		return nil, err
	}
	return toSend, nil
}

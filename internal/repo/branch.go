package repo

import (
	"fmt"
	"time"

	"github.com/oxenhq/oxen-core/internal/checkout"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/mergeengine"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/replock"
)

// CheckoutTarget mirrors checkout.Target at the repo API boundary.
type CheckoutTarget struct {
	Branch string
	Hash   hashing.Hash
	Create bool // -b: create Branch at the current HEAD before switching
}

// Checkout moves HEAD (and the working tree) to target,
// under the repository lock.
func (r *Repository) Checkout(target CheckoutTarget, force bool) (checkout.Result, error) {
	var result checkout.Result
	err := replock.WithLock(r.OxenDir, func() error {
		if target.Create {
			head, err := r.Refs.ResolveHead()
			if err != nil && !isNotFoundLookup(err) {
				return err
			}
			if err := r.Refs.SetBranch(target.Branch, head); err != nil {
				return err
			}
		}
		res, err := checkout.Checkout(checkout.Options{
			Nodes: r.Nodes, Content: r.Content, Refs: r.Refs, Index: r.Index, WorkDir: r.WorkDir, Force: force,
		}, checkout.Target{Branch: target.Branch, Hash: target.Hash})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// CreateBranch points a new branch name at HEAD's current commit.
func (r *Repository) CreateBranch(name string) error {
	return replock.WithLock(r.OxenDir, func() error {
		head, err := r.Refs.ResolveHead()
		if err != nil {
			return fmt.Errorf("repo: branch %q: %w", name, err)
		}
		return r.Refs.SetBranch(name, head)
	})
}

// DeleteBranch removes a branch. Force is required unless its tip is
// reachable from the currently checked-out branch, since otherwise the
// delete would discard commits with no other path back to them.
func (r *Repository) DeleteBranch(name string, force bool) error {
	return replock.WithLock(r.OxenDir, func() error {
		if !force {
			reachable, err := r.isReachableFromHead(name)
			if err != nil {
				return err
			}
			if !reachable {
				return oxerr.New(oxerr.KindInvalidArgument, fmt.Sprintf("branch %q is not fully merged; use force to delete anyway", name))
			}
		}
		return r.Refs.DeleteBranch(name)
	})
}

// isReachableFromHead reports whether branch's tip is an ancestor of (or
// equal to) the currently checked-out commit, via the same parent-walk
// mergeengine uses to find a lowest common ancestor.
func (r *Repository) isReachableFromHead(branch string) (bool, error) {
	tip, err := r.Refs.GetBranch(branch)
	if err != nil {
		return false, err
	}
	head, err := r.Refs.ResolveHead()
	if err != nil {
		if isNotFoundLookup(err) {
			return false, nil
		}
		return false, err
	}
	if tip == head {
		return true, nil
	}
	visited := map[hashing.Hash]bool{head: true}
	frontier := []hashing.Hash{head}
	for len(frontier) > 0 {
		var next []hashing.Hash
		for _, h := range frontier {
			n, err := r.Nodes.GetNode(h)
			if err != nil {
				return false, err
			}
			for _, p := range n.Commit.Parents {
				if p == tip {
					return true, nil
				}
				if !visited[p] {
					visited[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return false, nil
}

// Merge merges branch into the currently checked-out branch, under
// the repository lock.
func (r *Repository) Merge(branch string, author merkle.Signature, now time.Time) (mergeengine.Outcome, error) {
	var outcome mergeengine.Outcome
	err := replock.WithLock(r.OxenDir, func() error {
		base, err := r.Refs.ResolveHead()
		if err != nil {
			return fmt.Errorf("repo: merge: resolve HEAD: %w", err)
		}
		target, err := r.Refs.GetBranch(branch)
		if err != nil {
			return fmt.Errorf("repo: merge: resolve %q: %w", branch, err)
		}

		out, err := mergeengine.Merge(mergeengine.Options{
			Nodes: r.Nodes, Content: r.Content, WorkDir: r.WorkDir,
			Base: base, Target: target, Author: author,
			Message: fmt.Sprintf("merge branch '%s'", branch), Now: now,
		})
		if err != nil {
			return err
		}
		outcome = out

		if len(out.Conflicts) > 0 {
			return nil
		}
		if !out.FastForward && out.MergeCommit.IsZero() {
			return nil
		}

		newTip := out.MergeCommit
		if out.FastForward {
			newTip = target
		}

		// Sync the working tree against newTip while the branch ref
		// still points at base, so checkout's own HEAD-vs-target diff
		// (computed from the still-current branch tip) is the actual
		// merge delta rather than empty. checkout.Checkout sets HEAD
		// detached at newTip as a side effect; re-attach afterwards.
		headBranch, attached := r.Refs.CurrentBranch()
		if _, err := checkout.Checkout(checkout.Options{
			Nodes: r.Nodes, Content: r.Content, Refs: r.Refs, Index: r.Index, WorkDir: r.WorkDir, Force: true,
		}, checkout.Target{Hash: newTip}); err != nil {
			return err
		}

		if attached {
			if err := r.Refs.SetBranch(headBranch, newTip); err != nil {
				return err
			}
			return r.Refs.SetHeadBranch(headBranch)
		}
		return nil
	})
	return outcome, err
}

package transfer

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oxenhq/oxen-core/internal/checkout"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/mergeengine"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

// remoteLoader adapts a RemoteClient's GetNode into merkle.Loader so the
// download side can reuse the same walking/diffing helpers as the
// local-only packages.
type remoteLoader struct {
	ctx    context.Context
	remote RemoteClient
}

func (r remoteLoader) GetNode(h hashing.Hash) (*merkle.Node, error) {
	data, err := r.remote.GetNode(r.ctx, h)
	if err != nil {
		return nil, err
	}
	n, err := merkle.Deserialize(data)
	if err != nil {
		return nil, oxerr.Wrap(oxerr.KindCorruptStore, fmt.Sprintf("remote node %s", fmtHash(h)), err)
	}
	if n.Hash != h {
		return nil, oxerr.New(oxerr.KindCorruptStore, fmt.Sprintf("remote node at %s rehashes to %s", fmtHash(h), n.Hash.ShortString(10)))
	}
	return n, nil
}

// FetchOptions bundles what Fetch needs from the local repository.
type FetchOptions struct {
	Nodes   *nodestore.Store
	Content *content.Store
	Remote  RemoteClient
	Branch  string

	// Depth, if set, stops the commit walk after this many commits
	// reachable from the branch tip, leaving older history unfetched.
	Depth *int
	// SubtreePaths, if non-empty, restricts the tree walk at every
	// fetched commit to these paths (and their ancestor directories),
	// leaving the rest of the tree unfetched.
	SubtreePaths []string
}

// FetchResult reports what Fetch received and the remote tip it now
// knows about.
type FetchResult struct {
	RemoteTip hashing.Hash
	NodesRecv int
	BlobsRecv int
}

// Fetch downloads every node and blob reachable from the remote's tip
// for Branch that the local repository lacks, without touching any ref
// or the working directory.
func Fetch(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	var result FetchResult

	tip, ok, err := opts.Remote.GetBranch(ctx, opts.Branch)
	if err != nil {
		return result, fmt.Errorf("transfer: fetch: get remote branch: %w", err)
	}
	if !ok {
		return result, oxerr.New(oxerr.KindNotFound, fmt.Sprintf("remote branch %q does not exist", opts.Branch))
	}
	result.RemoteTip = tip

	if opts.Nodes.HasNode(tip) {
		return result, nil
	}

	order, err := planDownload(ctx, remoteLoader{ctx: ctx, remote: opts.Remote}, opts.Nodes, tip, opts.Depth, opts.SubtreePaths)
	if err != nil {
		return result, fmt.Errorf("transfer: fetch: plan download: %w", err)
	}

	for _, h := range order {
		data, err := opts.Remote.GetNode(ctx, h)
		if err != nil {
			return result, fmt.Errorf("transfer: fetch: get node %s: %w", fmtHash(h), err)
		}
		n, err := merkle.Deserialize(data)
		if err != nil {
			return result, oxerr.Wrap(oxerr.KindCorruptStore, fmt.Sprintf("node %s", fmtHash(h)), err)
		}
		if n.Type == merkle.NodeFile {
			recv, err := downloadBlobs(ctx, opts.Content, opts.Remote, n.File)
			if err != nil {
				return result, fmt.Errorf("transfer: fetch: download blobs for %s: %w", fmtHash(h), err)
			}
			result.BlobsRecv += recv
		}
		if err := opts.Nodes.PutNode(n); err != nil {
			return result, fmt.Errorf("transfer: fetch: store node %s: %w", fmtHash(h), err)
		}
		result.NodesRecv++
	}

	return result, nil
}

// planDownload mirrors planUpload's parents-last walk, but over the
// remote's tree, stopping (and not recursing further) at any subtree
// the local store already has. depth, if non-nil, stops the commit
// walk after that many commits reachable from root, leaving older
// parents (and everything only reachable through them) unfetched.
// subtreePaths, if non-empty, restricts each fetched commit's tree
// walk to those paths and their ancestor directories.
func planDownload(ctx context.Context, remote merkle.Loader, local *nodestore.Store, root hashing.Hash, depth *int, subtreePaths []string) ([]hashing.Hash, error) {
	if root.IsZero() || local.HasNode(root) {
		return nil, nil
	}

	var order []hashing.Hash
	visited := map[hashing.Hash]bool{}

	visitTree := func(treeRoot hashing.Hash) error {
		var visit func(h hashing.Hash, p string) error
		visit = func(h hashing.Hash, p string) error {
			if visited[h] || local.HasNode(h) {
				return nil
			}
			visited[h] = true

			n, err := remote.GetNode(h)
			if err != nil {
				return fmt.Errorf("transfer: load remote node %s: %w", fmtHash(h), err)
			}

			switch n.Type {
			case merkle.NodeDir:
				for _, vn := range n.Dir.VNodes {
					if err := visit(vn, p); err != nil {
						return err
					}
				}
			case merkle.NodeVNode:
				for _, c := range n.VNode.Children {
					childPath := subtreeJoin(p, c.Name)
					if !subtreeIncludes(subtreePaths, childPath) {
						continue
					}
					if err := visit(c.Hash, childPath); err != nil {
						return err
					}
				}
			default:
				for _, child := range childrenOf(n) {
					if err := visit(child, p); err != nil {
						return err
					}
				}
			}
			order = append(order, h)
			return nil
		}
		return visit(treeRoot, "")
	}

	remaining := -1 // unlimited
	if depth != nil {
		remaining = *depth
	}

	var visitCommit func(h hashing.Hash, left int) error
	visitCommit = func(h hashing.Hash, left int) error {
		if visited[h] || local.HasNode(h) {
			return nil
		}
		visited[h] = true

		n, err := remote.GetNode(h)
		if err != nil {
			return fmt.Errorf("transfer: load remote node %s: %w", fmtHash(h), err)
		}
		if n.Type != merkle.NodeCommit {
			return fmt.Errorf("transfer: expected commit node at %s, got %s", fmtHash(h), n.Type)
		}

		if left < 0 || left > 1 {
			next := left - 1
			for _, parent := range n.Commit.Parents {
				if err := visitCommit(parent, next); err != nil {
					return err
				}
			}
		}
		if !n.Commit.RootDir.IsZero() {
			if err := visitTree(n.Commit.RootDir); err != nil {
				return err
			}
		}
		order = append(order, h)
		return nil
	}

	if err := visitCommit(root, remaining); err != nil {
		return nil, err
	}
	return order, nil
}

// subtreeJoin appends name to the slash-separated path prefix.
func subtreeJoin(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// subtreeIncludes reports whether p should be walked given the requested
// subtree restriction: unrestricted when subtreePaths is empty, otherwise
// true for any path that is one of the restricted paths, an ancestor
// directory leading to one, or nested inside one.
func subtreeIncludes(subtreePaths []string, p string) bool {
	if len(subtreePaths) == 0 {
		return true
	}
	for _, t := range subtreePaths {
		if t == p || strings.HasPrefix(t, p+"/") || strings.HasPrefix(p, t+"/") {
			return true
		}
	}
	return false
}

func downloadBlobs(ctx context.Context, cs *content.Store, remote RemoteClient, f *merkle.FileNode) (int, error) {
	var n atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobConcurrency)

	for _, h := range blobsOf(f) {
		h := h
		if cs.Exists(h) {
			continue
		}
		g.Go(func() error {
			data, err := remote.GetBlob(gctx, h)
			if err != nil {
				return fmt.Errorf("transfer: get blob %s: %w", fmtHash(h), err)
			}
			if _, err := cs.Put(data); err != nil {
				return fmt.Errorf("transfer: store blob %s: %w", fmtHash(h), err)
			}
			n.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(n.Load()), err
	}
	return int(n.Load()), nil
}

// PullOptions bundles what Pull needs: a Fetch plus the working-copy
// state to check out or merge into.
type PullOptions struct {
	Nodes   *nodestore.Store
	Content *content.Store
	Refs    *refstore.Store
	Index   *wcindex.Index
	WorkDir string
	Remote  RemoteClient
	Branch  string
	Author  merkle.Signature

	Depth        *int
	SubtreePaths []string
}

// PullResult reports what Pull did.
type PullResult struct {
	Fetch       FetchResult
	FastForward bool
	Merged      bool
	Conflicts   []mergeengine.Conflict
}

// Pull fetches Branch from the remote and reconciles it with the local
// branch of the same name: fast-forwarding if possible, three-way
// merging if HEAD has diverged, or doing nothing if already current.
func Pull(ctx context.Context, opts PullOptions, now time.Time) (PullResult, error) {
	var result PullResult

	fr, err := Fetch(ctx, FetchOptions{
		Nodes: opts.Nodes, Content: opts.Content, Remote: opts.Remote, Branch: opts.Branch,
		Depth: opts.Depth, SubtreePaths: opts.SubtreePaths,
	})
	if err != nil {
		return result, err
	}
	result.Fetch = fr

	current, err := opts.Refs.GetBranch(opts.Branch)
	if err != nil {
		if !oxerr.Is(err, oxerr.KindNotFound) {
			return result, err
		}
		// Branch does not exist locally yet: adopt the remote tip
		// outright, equivalent to a fast-forward from nothing.
		result.FastForward = true
		return result, checkoutToTip(opts, opts.Branch, fr.RemoteTip)
	}

	if current == fr.RemoteTip {
		return result, nil
	}

	out, err := mergeengine.Merge(mergeengine.Options{
		Nodes: opts.Nodes, Content: opts.Content, WorkDir: opts.WorkDir,
		Base: current, Target: fr.RemoteTip, Author: opts.Author, Message: "merge remote-tracking branch", Now: now,
	})
	if err != nil {
		return result, fmt.Errorf("transfer: pull: merge: %w", err)
	}
	result.Conflicts = out.Conflicts
	if len(out.Conflicts) > 0 {
		return result, nil
	}
	if !out.FastForward && out.MergeCommit.IsZero() {
		// Remote tip was already an ancestor of the local branch: nothing to do.
		return result, nil
	}
	result.FastForward = out.FastForward
	result.Merged = !out.FastForward

	newTip := out.MergeCommit
	if out.FastForward {
		newTip = fr.RemoteTip
	}
	return result, checkoutToTip(opts, opts.Branch, newTip)
}

// checkoutToTip materialises newTip into the working directory while
// branch's ref still points at its old value, so checkout's own
// current-vs-target diff (computed from the still-old branch tip) is
// the actual delta rather than empty; only once that succeeds does it
// advance the branch ref and reattach HEAD to it. Mirrors the ordering
// internal/repo's Merge uses for the same reason.
func checkoutToTip(opts PullOptions, branch string, newTip hashing.Hash) error {
	if _, err := checkout.Checkout(checkout.Options{
		Nodes: opts.Nodes, Content: opts.Content, Refs: opts.Refs, Index: opts.Index, WorkDir: opts.WorkDir,
	}, checkout.Target{Hash: newTip}); err != nil {
		return err
	}
	if err := opts.Refs.SetBranch(branch, newTip); err != nil {
		return err
	}
	return opts.Refs.SetHeadBranch(branch)
}

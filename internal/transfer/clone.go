package transfer

import (
	"context"
	"fmt"

	"github.com/oxenhq/oxen-core/internal/checkout"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/repoconfig"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

// CloneOptions bundles the freshly-initialised local stores a Clone call
// populates and the remote it pulls from.
type CloneOptions struct {
	Nodes   *nodestore.Store
	Content *content.Store
	Refs    *refstore.Store
	Index   *wcindex.Index
	Config  *repoconfig.Config
	WorkDir string
	Remote  RemoteClient
	Branch  string // default branch to fetch; empty means ask the remote
}

// Clone implements "create-local-repo + fetch + checkout" equivalence.
// Depth and subtree restrictions are recorded in Config, so later
// fetches of the same repository keep honouring them, and are also
// applied to this initial fetch's node walk.
func Clone(ctx context.Context, opts CloneOptions, depth *int, subtreePaths []string) (FetchResult, error) {
	info, err := opts.Remote.RepoInfo(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("transfer: clone: repo info: %w", err)
	}
	if info.MinVersion > repoconfig.MinVersion {
		return FetchResult{}, oxerr.New(oxerr.KindVersionMismatch, fmt.Sprintf("remote requires min_version %d, local supports %d", info.MinVersion, repoconfig.MinVersion))
	}

	branch := opts.Branch
	if branch == "" {
		branch = info.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}

	opts.Config.Depth = depth
	opts.Config.SubtreePaths = subtreePaths

	if info.Empty {
		return FetchResult{}, nil
	}

	fr, err := Fetch(ctx, FetchOptions{
		Nodes: opts.Nodes, Content: opts.Content, Remote: opts.Remote, Branch: branch,
		Depth: depth, SubtreePaths: subtreePaths,
	})
	if err != nil {
		return fr, err
	}

	if err := opts.Refs.SetBranch(branch, fr.RemoteTip); err != nil {
		return fr, err
	}

	if _, err := checkout.Checkout(checkout.Options{
		Nodes: opts.Nodes, Content: opts.Content, Refs: opts.Refs, Index: opts.Index, WorkDir: opts.WorkDir,
	}, checkout.Target{Branch: branch}); err != nil {
		return fr, fmt.Errorf("transfer: clone: checkout: %w", err)
	}

	return fr, nil
}

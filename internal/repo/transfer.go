package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/replock"
	"github.com/oxenhq/oxen-core/internal/transfer"
)

// remoteClient resolves a configured remote name to a transfer.RemoteClient.
// It always returns an *transfer.HTTPRemote.
func (r *Repository) remoteClient(name string) (transfer.RemoteClient, error) {
	rem, ok := r.Config.Remote(name)
	if !ok {
		return nil, oxerr.New(oxerr.KindNotFound, fmt.Sprintf("no remote named %q", name))
	}
	ns, repoName, err := splitRemoteURL(rem.URL)
	if err != nil {
		return nil, fmt.Errorf("repo: remote %q: %w", name, err)
	}
	return transfer.NewHTTPRemote(rem.URL, ns, repoName, ""), nil
}

// splitRemoteURL pulls the {namespace}/{name} path component off a remote
// URL of the form scheme://host/repos/{namespace}/{name}, the only shape
// config.toml's [remotes] table stores.
func splitRemoteURL(url string) (namespace, name string, err error) {
	const marker = "/repos/"
	i := indexOf(url, marker)
	if i < 0 {
		return "", "", fmt.Errorf("remote url %q is missing a /repos/{namespace}/{name} path", url)
	}
	tail := url[i+len(marker):]
	slash := indexOf(tail, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("remote url %q is missing a repo name", url)
	}
	return tail[:slash], tail[slash+1:], nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// Push uploads branch's local commits, nodes, and blobs to remoteName,
// advancing the remote branch, under the repository lock.
func (r *Repository) Push(ctx context.Context, remoteName, branch string) (transfer.PushResult, error) {
	var result transfer.PushResult
	err := replock.WithLock(r.OxenDir, func() error {
		client, err := r.remoteClient(remoteName)
		if err != nil {
			return err
		}
		tip, err := r.Refs.GetBranch(branch)
		if err != nil {
			return fmt.Errorf("repo: push: resolve %q: %w", branch, err)
		}
		res, err := transfer.Push(ctx, transfer.PushOptions{
			Nodes: r.Nodes, Content: r.Content, Remote: client, Branch: branch, Tip: tip,
		})
		result = res
		return err
	})
	return result, err
}

// Fetch downloads branch's commits, nodes, and blobs from remoteName
// without touching any local ref or the working tree, under
// the repository lock.
func (r *Repository) Fetch(ctx context.Context, remoteName, branch string) (transfer.FetchResult, error) {
	var result transfer.FetchResult
	err := replock.WithLock(r.OxenDir, func() error {
		client, err := r.remoteClient(remoteName)
		if err != nil {
			return err
		}
		res, err := transfer.Fetch(ctx, transfer.FetchOptions{
			Nodes: r.Nodes, Content: r.Content, Remote: client, Branch: branch,
			Depth: r.Config.Depth, SubtreePaths: r.Config.SubtreePaths,
		})
		result = res
		return err
	})
	return result, err
}

// Pull fetches branch from remoteName and reconciles it with the local
// branch of the same name, fast-forwarding or three-way merging as
// needed and checking out the result, under the repository
// lock.
func (r *Repository) Pull(ctx context.Context, remoteName, branch string, author merkle.Signature, now time.Time) (transfer.PullResult, error) {
	var result transfer.PullResult
	err := replock.WithLock(r.OxenDir, func() error {
		client, err := r.remoteClient(remoteName)
		if err != nil {
			return err
		}
		res, err := transfer.Pull(ctx, transfer.PullOptions{
			Nodes: r.Nodes, Content: r.Content, Refs: r.Refs, Index: r.Index,
			WorkDir: r.WorkDir, Remote: client, Branch: branch, Author: author,
			Depth: r.Config.Depth, SubtreePaths: r.Config.SubtreePaths,
		}, now)
		result = res
		return err
	})
	return result, err
}

// CloneOptions names what Clone needs beyond the already-open repository.
type CloneOptions struct {
	RemoteURL    string
	Branch       string // empty: use the remote's default branch
	Depth        *int
	SubtreePaths []string
}

// Clone populates a freshly Init'd repository from a remote: it is the
// caller's responsibility to Init the repository and record the remote
// with SetRemote before calling this. Clone fetches and checks out, then
// saves r.Config with SaveConfig when the clone succeeds.
func (r *Repository) Clone(ctx context.Context, opts CloneOptions) (transfer.FetchResult, error) {
	var result transfer.FetchResult
	err := replock.WithLock(r.OxenDir, func() error {
		ns, name, err := splitRemoteURL(opts.RemoteURL)
		if err != nil {
			return err
		}
		client := transfer.NewHTTPRemote(opts.RemoteURL, ns, name, "")
		res, err := transfer.Clone(ctx, transfer.CloneOptions{
			Nodes: r.Nodes, Content: r.Content, Refs: r.Refs, Index: r.Index,
			Config: r.Config, WorkDir: r.WorkDir, Remote: client, Branch: opts.Branch,
		}, opts.Depth, opts.SubtreePaths)
		result = res
		return err
	})
	if err != nil {
		return result, err
	}
	return result, r.SaveConfig()
}

package transfer

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
)

// blobConcurrency bounds how many blobs this process uploads to one
// remote at once.
const blobConcurrency = 8

// PushOptions bundles what Push needs from the local repository.
type PushOptions struct {
	Nodes   *nodestore.Store
	Content *content.Store
	Remote  RemoteClient
	Branch  string
	Tip     hashing.Hash // local branch tip being pushed
}

// PushResult reports what Push sent.
type PushResult struct {
	CommitsSent int
	NodesSent   int
	BlobsSent   int
}

// Push implements push algorithm: compute the commits the
// remote lacks and, for each one oldest-first, upload its missing nodes
// and blobs parents-last, then CAS-advance the remote branch to it.
func Push(ctx context.Context, opts PushOptions) (PushResult, error) {
	var result PushResult

	remoteTip, hadBranch, err := opts.Remote.GetBranch(ctx, opts.Branch)
	if err != nil {
		return result, fmt.Errorf("transfer: push: get remote branch: %w", err)
	}

	commits, err := commitsToSend(ctx, opts.Nodes, opts.Remote, opts.Tip, remoteTip)
	if err != nil {
		return result, fmt.Errorf("transfer: push: enumerate commits: %w", err)
	}
	result.CommitsSent = len(commits)

	for _, c := range commits {
		commitNode, err := opts.Nodes.GetNode(c)
		if err != nil {
			return result, err
		}

		order, err := planUpload(ctx, opts.Nodes, opts.Remote, c)
		if err != nil {
			return result, fmt.Errorf("transfer: push: plan upload for commit %s: %w", fmtHash(c), err)
		}

		for _, h := range order {
			n, err := opts.Nodes.GetNode(h)
			if err != nil {
				return result, err
			}
			data, err := merkle.Serialize(n)
			if err != nil {
				return result, fmt.Errorf("transfer: push: serialize %s: %w", fmtHash(h), err)
			}
			if n.Type == merkle.NodeFile {
				sent, err := uploadBlobs(ctx, opts.Content, opts.Remote, n.File)
				if err != nil {
					return result, fmt.Errorf("transfer: push: upload blobs for %s: %w", fmtHash(h), err)
				}
				result.BlobsSent += sent
			}
			if err := opts.Remote.PutNode(ctx, h, data); err != nil {
				return result, fmt.Errorf("transfer: push: put node %s: %w", fmtHash(h), err)
			}
			result.NodesSent++
		}

		expected := remoteTip
		if err := opts.Remote.SetBranch(ctx, opts.Branch, expected, c); err != nil {
			return result, err
		}
		remoteTip = c
	}

	if len(commits) == 0 && !hadBranch {
		// Nothing to send but the remote has never heard of this
		// branch (e.g. pushing an empty repository's initial branch
		// pointer): still advance it to the local tip.
		if err := opts.Remote.SetBranch(ctx, opts.Branch, hashing.Hash{}, opts.Tip); err != nil {
			return result, err
		}
	}

	return result, nil
}

func uploadBlobs(ctx context.Context, cs *content.Store, remote RemoteClient, f *merkle.FileNode) (int, error) {
	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobConcurrency)

	for _, h := range blobsOf(f) {
		h := h
		g.Go(func() error {
			has, err := remote.HasBlob(gctx, h)
			if err != nil {
				return err
			}
			if has {
				return nil
			}
			data, err := cs.GetBytes(h)
			if err != nil {
				return fmt.Errorf("transfer: read local blob %s: %w", fmtHash(h), err)
			}
			if err := uploadBlob(gctx, remote, h, data); err != nil {
				return err
			}
			sent.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(sent.Load()), err
}

// uploadBlob slices data into equal-sized parts and uploads each one
//; the blob hash is the upload id so re-running
// this after a partial failure simply re-uploads the same parts.
func uploadBlob(ctx context.Context, remote RemoteClient, h hashing.Hash, data []byte) error {
	n := partCount(len(data), PartSize)
	etags := make([]string, n)
	for i := 0; i < n; i++ {
		start, end := partBounds(len(data), PartSize, i)
		etag, err := remote.PutBlobPart(ctx, h, i, data[start:end])
		if err != nil {
			return fmt.Errorf("transfer: upload part %d of blob %s: %w", i, fmtHash(h), err)
		}
		etags[i] = etag
	}
	return remote.CompleteBlob(ctx, h, etags)
}

package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/oxenhq/oxen-core/internal/progress"
	"github.com/oxenhq/oxen-core/internal/repo"
)

// remoteAndBranch resolves the optional [<remote>] [<branch>] tail
// shared by push/fetch/pull, defaulting to "origin" and the currently
// checked-out branch.
func remoteAndBranch(r *repo.Repository, args []string) (remote, branch string, err error) {
	remote = "origin"
	switch len(args) {
	case 0:
	case 1:
		remote = args[0]
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("usage: <command> [<remote>] [<branch>]")
	}

	branch, attached := r.CurrentBranch()
	if !attached {
		return "", "", fmt.Errorf("HEAD is detached; specify a branch explicitly")
	}
	return remote, branch, nil
}

func runPush(r *repo.Repository, args []string) int {
	remote, branch, err := remoteAndBranch(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	spin := progress.New(fmt.Sprintf("Pushing to %s...", remote))
	spin.Start()
	result, err := r.Push(context.Background(), remote, branch)
	if err != nil {
		spin.Fail(err.Error())
		return 1
	}
	spin.Success(fmt.Sprintf("Pushed %d commit(s), %d node(s), %d blob(s) to %s/%s",
		result.CommitsSent, result.NodesSent, result.BlobsSent, remote, branch))
	return 0
}

func runFetch(r *repo.Repository, args []string) int {
	remote, branch, err := remoteAndBranch(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	spin := progress.New(fmt.Sprintf("Fetching from %s...", remote))
	spin.Start()
	result, err := r.Fetch(context.Background(), remote, branch)
	if err != nil {
		spin.Fail(err.Error())
		return 1
	}
	spin.Success(fmt.Sprintf("Fetched %d node(s), %d blob(s) from %s/%s (tip %s)",
		result.NodesRecv, result.BlobsRecv, remote, branch, result.RemoteTip.ShortString(10)))
	return 0
}

func runPull(r *repo.Repository, args []string) int {
	remote, branch, err := remoteAndBranch(r, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	author, err := resolveAuthor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	spin := progress.New(fmt.Sprintf("Pulling from %s...", remote))
	spin.Start()
	result, err := r.Pull(context.Background(), remote, branch, author, time.Now())
	if err != nil {
		spin.Fail(err.Error())
		return 1
	}

	switch {
	case len(result.Conflicts) > 0:
		spin.Fail("merge conflicts")
		for _, c := range result.Conflicts {
			fmt.Printf("CONFLICT: %s\n", c.Path)
		}
		return 1
	case result.FastForward:
		spin.Success(fmt.Sprintf("Fast-forwarded %s to %s", branch, result.Fetch.RemoteTip.ShortString(10)))
	case result.Merged:
		spin.Success(fmt.Sprintf("Merged %s/%s", remote, branch))
	default:
		spin.Success("Already up to date.")
	}
	return 0
}

func runClone(args []string) int {
	var url, dir string
	var depth *int
	var subtreePaths []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--depth" && i+1 < len(args):
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "error: invalid --depth value: %q\n", args[i])
				return 1
			}
			depth = &n
		case args[i] == "--subtree" && i+1 < len(args):
			i++
			subtreePaths = append(subtreePaths, args[i])
		case args[i] == "--all":
			depth = nil
			subtreePaths = nil
		case strings.HasPrefix(args[i], "--"):
			fmt.Fprintf(os.Stderr, "error: unknown option: %q\n", args[i])
			return 1
		case url == "":
			url = args[i]
		case dir == "":
			dir = args[i]
		default:
			fmt.Fprintln(os.Stderr, "usage: oxen clone <url> [<dir>] [--depth N] [--subtree P] [--all]")
			return 1
		}
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "usage: oxen clone <url> [<dir>] [--depth N] [--subtree P] [--all]")
		return 1
	}

	if dir == "" {
		dir = path.Base(strings.TrimRight(url, "/"))
		if dir == "." || dir == "/" || dir == "" {
			fmt.Fprintln(os.Stderr, "error: could not infer a directory name from the url; pass <dir> explicitly")
			return 1
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	r, err := repo.Init(dir, repo.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	r.Config.SetRemote("origin", url)

	spin := progress.New(fmt.Sprintf("Cloning into %s...", dir))
	spin.Start()
	result, err := r.Clone(context.Background(), repo.CloneOptions{RemoteURL: url, Depth: depth, SubtreePaths: subtreePaths})
	if err != nil {
		spin.Fail(err.Error())
		return 1
	}
	spin.Success(fmt.Sprintf("Received %d node(s), %d blob(s)", result.NodesRecv, result.BlobsRecv))
	return 0
}

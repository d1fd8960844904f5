package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/commitbuilder"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/repoconfig"
	"github.com/oxenhq/oxen-core/internal/stage"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

type side struct {
	nodes   *nodestore.Store
	content *content.Store
	refs    *refstore.Store
	idx     *wcindex.Index
	workDir string
}

func newSide(t *testing.T) *side {
	t.Helper()
	nodes, err := nodestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cs, err := content.New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	refsDir := t.TempDir()
	refs, err := refstore.New(refsDir, filepath.Join(refsDir, "HEAD"))
	if err != nil {
		t.Fatal(err)
	}
	idx, err := wcindex.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workDir, ".oxen"), 0o755); err != nil {
		t.Fatal(err)
	}
	return &side{nodes: nodes, content: cs, refs: refs, idx: idx, workDir: workDir}
}

func (s *side) commit(t *testing.T, parentRoot hashing.Hash, parents []hashing.Hash, files map[string]string) hashing.Hash {
	t.Helper()
	var staged []stage.Entry
	meta := map[string]commitbuilder.FileMeta{}
	for path, c := range files {
		h, err := s.content.Put([]byte(c))
		if err != nil {
			t.Fatal(err)
		}
		staged = append(staged, stage.Entry{Path: path, Status: stage.StatusAdded, ContentHash: h})
		meta[path] = commitbuilder.FileMeta{ContentHash: h, NumBytes: uint64(len(c)), DataType: merkle.DataTypeText}
	}
	res, err := commitbuilder.Build(commitbuilder.Options{
		Store: s.nodes, ParentRoot: parentRoot, Staged: staged, Meta: meta,
		Message: "c", Parents: parents, Now: time.Unix(1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.CommitHash
}

func (s *side) root(t *testing.T, commitHash hashing.Hash) hashing.Hash {
	t.Helper()
	n, err := s.nodes.GetNode(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	return n.Commit.RootDir
}

func TestPush_UploadsCommitsNodesAndBlobs(t *testing.T) {
	client := newSide(t)
	server := newSide(t)
	remote := NewLocalRemote(server.nodes, server.content, server.refs)

	c1 := client.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello"})
	root1 := client.root(t, c1)
	c2 := client.commit(t, root1, []hashing.Hash{c1}, map[string]string{"a.txt": "hello", "b.txt": "world"})

	result, err := Push(context.Background(), PushOptions{
		Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.CommitsSent != 2 {
		t.Fatalf("expected 2 commits sent, got %d", result.CommitsSent)
	}

	tip, ok, err := remote.GetBranch(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || tip != c2 {
		t.Fatalf("expected remote main at %s, got %s ok=%v", c2, tip, ok)
	}

	files, err := merkle.WalkFiles(server.nodes, server.root(t, c2))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a.txt", "b.txt"} {
		if files[want] == nil {
			t.Fatalf("expected %q present on remote, got %v", want, files)
		}
	}
}

func TestPush_SecondPushOnlyUploadsNewCommit(t *testing.T) {
	client := newSide(t)
	server := newSide(t)
	remote := NewLocalRemote(server.nodes, server.content, server.refs)

	c1 := client.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello"})
	if _, err := Push(context.Background(), PushOptions{Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c1}); err != nil {
		t.Fatal(err)
	}

	root1 := client.root(t, c1)
	c2 := client.commit(t, root1, []hashing.Hash{c1}, map[string]string{"a.txt": "hello", "b.txt": "world"})

	result, err := Push(context.Background(), PushOptions{Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c2})
	if err != nil {
		t.Fatal(err)
	}
	if result.CommitsSent != 1 {
		t.Fatalf("expected only the new commit to be sent, got %d", result.CommitsSent)
	}
}

func TestPush_NonFastForwardIsRejected(t *testing.T) {
	client := newSide(t)
	server := newSide(t)
	remote := NewLocalRemote(server.nodes, server.content, server.refs)

	c1 := client.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello"})
	if _, err := Push(context.Background(), PushOptions{Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c1}); err != nil {
		t.Fatal(err)
	}

	// Someone else advances the remote branch directly, out from under us.
	other := client.commit(t, hashing.Hash{}, nil, map[string]string{"other.txt": "x"})
	if err := remote.Refs.SetBranch("main", other); err != nil {
		t.Fatal(err)
	}

	root1 := client.root(t, c1)
	c2 := client.commit(t, root1, []hashing.Hash{c1}, map[string]string{"a.txt": "hello-v2"})
	_, err := Push(context.Background(), PushOptions{Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c2})
	if err == nil {
		t.Fatal("expected push to fail when remote branch moved")
	}
}

func TestFetchAndPull_ReproducesTreeAndChecksOut(t *testing.T) {
	server := newSide(t)
	remote := NewLocalRemote(server.nodes, server.content, server.refs)

	c1 := server.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello"})
	root1 := server.root(t, c1)
	c2 := server.commit(t, root1, []hashing.Hash{c1}, map[string]string{"a.txt": "hello", "b.txt": "world"})
	if err := server.refs.SetBranch("main", c2); err != nil {
		t.Fatal(err)
	}

	client := newSide(t)
	fr, err := Fetch(context.Background(), FetchOptions{Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if fr.RemoteTip != c2 {
		t.Fatalf("expected fetched tip %s, got %s", c2, fr.RemoteTip)
	}

	files, err := merkle.WalkFiles(client.nodes, client.root(t, c2))
	if err != nil {
		t.Fatal(err)
	}
	for path, fn := range files {
		data, err := client.content.GetBytes(fn.ContentHash)
		if err != nil {
			t.Fatalf("blob for %q not transferred: %v", path, err)
		}
		_ = data
	}

	pullClient := newSide(t)
	pr, err := Pull(context.Background(), PullOptions{
		Nodes: pullClient.nodes, Content: pullClient.content, Refs: pullClient.refs,
		Index: pullClient.idx, WorkDir: pullClient.workDir, Remote: remote, Branch: "main",
	}, time.Unix(10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !pr.FastForward {
		t.Fatalf("expected first pull into an empty repo to fast-forward, got %+v", pr)
	}

	data, err := os.ReadFile(filepath.Join(pullClient.workDir, "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "world" {
		t.Fatalf("got %q, want %q", data, "world")
	}
}

func TestClone_ReproducesRootHashAndChecksOutWorkingTree(t *testing.T) {
	server := newSide(t)
	remote := NewLocalRemote(server.nodes, server.content, server.refs)
	remote.DefaultBranch = "main"

	c1 := server.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello", "dir/nested.txt": "deep"})
	if err := server.refs.SetBranch("main", c1); err != nil {
		t.Fatal(err)
	}

	clientDir := t.TempDir()
	client := newSide(t)
	client.workDir = clientDir
	if err := os.MkdirAll(filepath.Join(clientDir, ".oxen"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := repoconfig.New()

	fr, err := Clone(context.Background(), CloneOptions{
		Nodes: client.nodes, Content: client.content, Refs: client.refs, Index: client.idx,
		Config: cfg, WorkDir: client.workDir, Remote: remote,
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fr.RemoteTip != c1 {
		t.Fatalf("expected cloned tip %s, got %s", c1, fr.RemoteTip)
	}

	clonedRoot := client.root(t, c1)
	serverRoot := server.root(t, c1)
	if clonedRoot != serverRoot {
		t.Fatalf("expected cloned root %s to equal server root %s", clonedRoot, serverRoot)
	}

	data, err := os.ReadFile(filepath.Join(client.workDir, "dir", "nested.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "deep" {
		t.Fatalf("got %q, want %q", data, "deep")
	}
}

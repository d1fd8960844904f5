package mergeengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/commitbuilder"
	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/stage"
)

type fixture struct {
	nodes   *nodestore.Store
	content *content.Store
	workDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nodes, err := nodestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cs, err := content.New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workDir, ".oxen"), 0o755); err != nil {
		t.Fatal(err)
	}
	return &fixture{nodes: nodes, content: cs, workDir: workDir}
}

func (f *fixture) commit(t *testing.T, parentRoot hashing.Hash, parents []hashing.Hash, files map[string]string) hashing.Hash {
	t.Helper()
	var staged []stage.Entry
	meta := map[string]commitbuilder.FileMeta{}
	for path, c := range files {
		h, err := f.content.Put([]byte(c))
		if err != nil {
			t.Fatal(err)
		}
		staged = append(staged, stage.Entry{Path: path, Status: stage.StatusAdded, ContentHash: h})
		meta[path] = commitbuilder.FileMeta{ContentHash: h, NumBytes: uint64(len(c)), DataType: merkle.DataTypeText}
	}
	res, err := commitbuilder.Build(commitbuilder.Options{
		Store: f.nodes, ParentRoot: parentRoot, Staged: staged, Meta: meta,
		Message: "c", Parents: parents, Now: time.Unix(1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.CommitHash
}

func (f *fixture) root(t *testing.T, commitHash hashing.Hash) hashing.Hash {
	t.Helper()
	n, err := f.nodes.GetNode(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	return n.Commit.RootDir
}

func TestMerge_SameCommitIsNoop(t *testing.T) {
	f := newFixture(t)
	c1 := f.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "x"})
	out, err := Merge(Options{Nodes: f.nodes, Content: f.content, WorkDir: f.workDir, Base: c1, Target: c1, Now: time.Unix(2, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if out.FastForward || !out.MergeCommit.IsZero() || len(out.Conflicts) != 0 {
		t.Fatalf("expected pure no-op outcome, got %+v", out)
	}
}

func TestMerge_FastForward(t *testing.T) {
	f := newFixture(t)
	c1 := f.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "x"})
	root1 := f.root(t, c1)
	c2 := f.commit(t, root1, []hashing.Hash{c1}, map[string]string{"b.txt": "y"})

	out, err := Merge(Options{Nodes: f.nodes, Content: f.content, WorkDir: f.workDir, Base: c1, Target: c2, Now: time.Unix(3, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if !out.FastForward {
		t.Fatalf("expected fast-forward, got %+v", out)
	}
	if out.NewRoot != f.root(t, c2) {
		t.Fatal("expected fast-forward root to equal target's root")
	}
}

func TestMerge_TargetAlreadyMergedIsNoop(t *testing.T) {
	f := newFixture(t)
	c1 := f.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "x"})
	root1 := f.root(t, c1)
	c2 := f.commit(t, root1, []hashing.Hash{c1}, map[string]string{"b.txt": "y"})

	out, err := Merge(Options{Nodes: f.nodes, Content: f.content, WorkDir: f.workDir, Base: c2, Target: c1, Now: time.Unix(4, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if out.FastForward || !out.MergeCommit.IsZero() {
		t.Fatalf("expected no-op (target already an ancestor), got %+v", out)
	}
}

func TestMerge_CleanThreeWayMerge(t *testing.T) {
	f := newFixture(t)
	base := f.commit(t, hashing.Hash{}, nil, map[string]string{"shared.txt": "base"})
	baseRoot := f.root(t, base)

	b1 := f.commit(t, baseRoot, []hashing.Hash{base}, map[string]string{"b1-only.txt": "from-b1", "shared.txt": "base"})
	b2 := f.commit(t, baseRoot, []hashing.Hash{base}, map[string]string{"b2-only.txt": "from-b2", "shared.txt": "base"})

	out, err := Merge(Options{Nodes: f.nodes, Content: f.content, WorkDir: f.workDir, Base: b1, Target: b2, Message: "merge", Now: time.Unix(5, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Conflicts) != 0 {
		t.Fatalf("expected clean merge, got conflicts %+v", out.Conflicts)
	}
	if out.MergeCommit.IsZero() {
		t.Fatal("expected a merge commit")
	}

	files, err := merkle.WalkFiles(f.nodes, out.NewRoot)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"shared.txt", "b1-only.txt", "b2-only.txt"} {
		if files[want] == nil {
			t.Fatalf("expected %q in merged tree, got %v", want, files)
		}
	}
}

func TestMerge_ConflictingChangesWriteMergeHead(t *testing.T) {
	f := newFixture(t)
	base := f.commit(t, hashing.Hash{}, nil, map[string]string{"data.txt": "line1\n"})
	baseRoot := f.root(t, base)

	b1 := f.commit(t, baseRoot, []hashing.Hash{base}, map[string]string{"data.txt": "line1-b1\n"})
	b2 := f.commit(t, baseRoot, []hashing.Hash{base}, map[string]string{"data.txt": "line1-b2\n"})

	out, err := Merge(Options{Nodes: f.nodes, Content: f.content, WorkDir: f.workDir, Base: b1, Target: b2, Message: "merge", Now: time.Unix(6, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Conflicts) != 1 || out.Conflicts[0].Path != "data.txt" {
		t.Fatalf("expected one conflict on data.txt, got %+v", out.Conflicts)
	}
	if !out.MergeCommit.IsZero() {
		t.Fatal("expected no merge commit when conflicts exist")
	}

	mergeHead, ok, err := ReadMergeHead(f.workDir)
	if err != nil || !ok {
		t.Fatalf("expected MERGE_HEAD to exist, err=%v", err)
	}
	if mergeHead != b2 {
		t.Fatalf("expected MERGE_HEAD to point at target, got %s want %s", mergeHead, b2)
	}

	markers, err := os.ReadFile(filepath.Join(f.workDir, "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(markers) == "" {
		t.Fatal("expected conflict markers written to working file")
	}

	if err := ClearMergeHead(f.workDir); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := ReadMergeHead(f.workDir); err != nil || ok {
		t.Fatal("expected MERGE_HEAD cleared")
	}
}

package workspace

import (
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/refstore"
)

func newTestWorkspace(t *testing.T, branch string) (*Workspace, *nodestore.Store, *refstore.Store) {
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
	refs, err := refstore.New(refsDir, refsDir+"/HEAD")
	if err != nil {
		t.Fatal(err)
	}
	ws, err := Open(t.TempDir(), branch, nodes, cs, refs)
	if err != nil {
		t.Fatal(err)
	}
	return ws, nodes, refs
}

var wsAuthor = merkle.Signature{Name: "editor", Email: "editor@example.com"}

func TestStageThenCommit_AdvancesBranchWithNoBackingWorkingDir(t *testing.T) {
	ws, nodes, refs := newTestWorkspace(t, "main")

	if err := ws.Stage("notes/a.md", []byte("# hello")); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := ws.Stage("data.csv", []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("stage: %v", err)
	}

	commitHash, err := ws.Commit("edit via workspace", wsAuthor, time.Unix(1, 0))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if commitHash.IsZero() {
		t.Fatal("expected a non-zero commit hash")
	}

	tip, err := refs.GetBranch("main")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if tip != commitHash {
		t.Fatalf("expected branch main at %s, got %s", commitHash, tip)
	}

	n, err := nodes.GetNode(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	md, err := merkle.Lookup(nodes, n.Commit.RootDir, "notes/a.md")
	if err != nil {
		t.Fatalf("lookup notes/a.md: %v", err)
	}
	if md.DataType != merkle.DataTypeText {
		t.Fatalf("expected notes/a.md to be classified text, got %v", md.DataType)
	}
	csv, err := merkle.Lookup(nodes, n.Commit.RootDir, "data.csv")
	if err != nil {
		t.Fatalf("lookup data.csv: %v", err)
	}
	if csv.DataType != merkle.DataTypeText {
		t.Fatalf("expected data.csv to be classified text, got %v", csv.DataType)
	}
}

func TestCommit_FailsWhenNothingStaged(t *testing.T) {
	ws, _, _ := newTestWorkspace(t, "main")
	if _, err := ws.Commit("empty", wsAuthor, time.Unix(1, 0)); err == nil {
		t.Fatal("expected commit with nothing staged to fail")
	}
}

func TestSecondCommit_ChainsOntoFirstAsParent(t *testing.T) {
	ws, nodes, refs := newTestWorkspace(t, "main")

	if err := ws.Stage("a.txt", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	c1, err := ws.Commit("first", wsAuthor, time.Unix(1, 0))
	if err != nil {
		t.Fatal(err)
	}

	if err := ws.Stage("b.txt", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	c2, err := ws.Commit("second", wsAuthor, time.Unix(2, 0))
	if err != nil {
		t.Fatal(err)
	}

	n, err := nodes.GetNode(c2)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Commit.Parents) != 1 || n.Commit.Parents[0] != c1 {
		t.Fatalf("expected second commit's parent to be %s, got %v", c1, n.Commit.Parents)
	}

	if _, err := merkle.Lookup(nodes, n.Commit.RootDir, "a.txt"); err != nil {
		t.Fatalf("expected a.txt to survive into the second commit's tree: %v", err)
	}

	tip, err := refs.GetBranch("main")
	if err != nil {
		t.Fatal(err)
	}
	if tip != c2 {
		t.Fatalf("expected branch at %s, got %s", c2, tip)
	}
}

func TestRemove_DropsPendingStageWithoutCommitting(t *testing.T) {
	ws, _, _ := newTestWorkspace(t, "main")
	if err := ws.Stage("a.txt", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := ws.Remove("a.txt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := ws.Commit("should fail", wsAuthor, time.Unix(1, 0)); err == nil {
		t.Fatal("expected commit to fail once the only staged path was removed")
	}
}

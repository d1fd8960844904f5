package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
)

func TestHTTPRemote_PushThenFetchOverRealHTTP(t *testing.T) {
	server := newSide(t)
	repoServer := NewRepoServer(server.nodes, server.content, server.refs)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/", repoServer.Handler("/repos/acme/dataset"))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	remote := NewHTTPRemote(ts.URL, "acme", "dataset", "")

	info, err := remote.RepoInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !info.Empty {
		t.Fatal("expected a fresh server-side repo to report empty")
	}

	client := newSide(t)
	c1 := client.commit(t, hashing.Hash{}, nil, map[string]string{"a.txt": "hello"})
	root1 := client.root(t, c1)
	c2 := client.commit(t, root1, []hashing.Hash{c1}, map[string]string{"a.txt": "hello", "b.txt": "world"})

	pushResult, err := Push(context.Background(), PushOptions{
		Nodes: client.nodes, Content: client.content, Remote: remote, Branch: "main", Tip: c2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pushResult.CommitsSent != 2 {
		t.Fatalf("expected 2 commits sent, got %d", pushResult.CommitsSent)
	}

	tip, ok, err := remote.GetBranch(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || tip != c2 {
		t.Fatalf("expected remote main at %s, got %s ok=%v", c2, tip, ok)
	}

	fetchClient := newSide(t)
	fr, err := Fetch(context.Background(), FetchOptions{
		Nodes: fetchClient.nodes, Content: fetchClient.content, Remote: remote, Branch: "main",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fr.RemoteTip != c2 {
		t.Fatalf("expected fetched tip %s, got %s", c2, fr.RemoteTip)
	}

	files, err := merkle.WalkFiles(fetchClient.nodes, fetchClient.root(t, c2))
	if err != nil {
		t.Fatal(err)
	}
	for path, fn := range files {
		data, err := fetchClient.content.GetBytes(fn.ContentHash)
		if err != nil {
			t.Fatalf("blob for %q not fetched over HTTP: %v", path, err)
		}
		if len(data) == 0 {
			t.Fatalf("blob for %q is empty", path)
		}
	}

	// Push again from a different client with a non-fast-forward branch
	// state to confirm the CAS is enforced end-to-end over HTTP.
	divergedClient := newSide(t)
	other := divergedClient.commit(t, hashing.Hash{}, nil, map[string]string{"other.txt": "x"})
	if _, err := Push(context.Background(), PushOptions{
		Nodes: divergedClient.nodes, Content: divergedClient.content, Remote: remote, Branch: "main", Tip: other,
	}); err == nil {
		t.Fatal("expected non-fast-forward push to fail")
	}
}

package server

import (
	"testing"
	"time"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/refstore"
)

func newTestHub(t *testing.T) *RepoHub {
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
	return NewRepoHub(HubConfig{
		Namespace: "acme", Name: "dataset",
		Nodes: nodes, Content: cs, Refs: refs,
		Logger: silentLogger(),
	})
}

func TestNewRepoHub_InitialisesFields(t *testing.T) {
	h := newTestHub(t)

	if h.clients == nil {
		t.Error("clients map is nil")
	}
	if h.broadcast == nil {
		t.Error("broadcast channel is nil")
	}
	if h.nodeCache == nil {
		t.Error("nodeCache is nil")
	}
	if h.RepoServer == nil {
		t.Error("RepoServer is nil")
	}
}

func TestRepoHub_Close(t *testing.T) {
	h := newTestHub(t)
	h.Start()

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()

	select {
	case <-done:
		select {
		case <-h.ctx.Done():
		default:
			t.Error("context was not canceled after Close()")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not complete within 5 seconds")
	}
}

func TestRepoHub_BroadcastStampsNamespaceAndName(t *testing.T) {
	h := newTestHub(t)
	// Not started: the broadcast channel is never drained, so the event
	// sent below is still sitting on it to inspect directly.
	h.Broadcast(ProgressEvent{Op: "push", Phase: "received-node"})

	select {
	case ev := <-h.broadcast:
		if ev.Namespace != "acme" || ev.Name != "dataset" {
			t.Errorf("Broadcast did not stamp namespace/name: %+v", ev)
		}
	default:
		t.Fatal("expected the broadcast event to be queued")
	}
}

func TestRepoHub_BroadcastDropsWhenChannelFull(t *testing.T) {
	h := newTestHub(t)
	for i := 0; i < broadcastChannelSize+10; i++ {
		h.Broadcast(ProgressEvent{Op: "push"})
	}
	// No assertion beyond "did not block or panic" — Broadcast is
	// documented to drop events once the channel is full.
}

func TestRepoHub_DefaultCacheSize(t *testing.T) {
	h := newTestHub(t)
	if h.nodeCache.maxSize != defaultCacheSize {
		t.Errorf("nodeCache size = %d, want %d", h.nodeCache.maxSize, defaultCacheSize)
	}
}

package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/transfer"
)

const defaultCacheSize = 500

// RepoHub holds per-repository state: the wire-protocol RepoServer that
// answers its endpoints, the set of WebSocket clients watching this
// repo's transfer activity, and a node-lookup cache shared across
// requests. One RepoHub per namespace/name this server hosts.
type RepoHub struct {
	Namespace string
	Name      string

	RepoServer *transfer.RepoServer
	nodeCache  *LRUCache[any]

	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan ProgressEvent

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

// HubConfig holds initialization parameters for a RepoHub.
type HubConfig struct {
	Namespace string
	Name      string
	Nodes     *nodestore.Store
	Content   *content.Store
	Refs      *refstore.Store
	CacheSize int
	Logger    *slog.Logger
}

// NewRepoHub constructs a RepoHub ready to be started.
func NewRepoHub(cfg HubConfig) *RepoHub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	rs := transfer.NewRepoServer(cfg.Nodes, cfg.Content, cfg.Refs)
	rs.Logger = cfg.Logger

	return &RepoHub{
		Namespace:  cfg.Namespace,
		Name:       cfg.Name,
		RepoServer: rs,
		nodeCache:  NewLRUCache[any](cfg.CacheSize),
		logger:     cfg.Logger.With("repo", cfg.Namespace+"/"+cfg.Name),
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		broadcast:  make(chan ProgressEvent, broadcastChannelSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the broadcast delivery goroutine.
func (h *RepoHub) Start() {
	h.wg.Add(1)
	go h.handleBroadcast()
}

// Close cancels the hub's context, waits for its goroutines, sends
// WebSocket close frames to all clients, then force-closes connections.
func (h *RepoHub) Close() {
	h.cancel()
	h.wg.Wait()

	h.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clientsMu.RUnlock()

	if len(clients) > 0 {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(1 * time.Second)
		for _, conn := range clients {
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		}
		time.Sleep(500 * time.Millisecond)
	}

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.clientsMu.Unlock()

	h.clientWg.Wait()
}

// handleBroadcast reads from the broadcast channel and sends events to
// all connected WebSocket clients. Runs until the hub context is canceled.
func (h *RepoHub) handleBroadcast() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.broadcast:
			h.sendToAllClients(ev)
		}
	}
}

func (h *RepoHub) sendToAllClients(ev ProgressEvent) {
	var failed []*websocket.Conn

	h.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		snapshot[conn] = mu
	}
	h.clientsMu.RUnlock()

	for conn, mu := range snapshot {
		mu.Lock()
		err1 := conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err2 error
		if err1 == nil {
			err2 = conn.WriteJSON(ev)
		}
		mu.Unlock()

		if err1 != nil || err2 != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, conn := range failed {
			delete(h.clients, conn)
			_ = conn.Close()
		}
		h.clientsMu.Unlock()
	}
}

// Broadcast queues ev for delivery to this hub's connected clients,
// called as the RepoServer handles push/fetch/branch-update requests.
// Non-blocking: drops the event if the channel is full rather than
// stalling the HTTP request it was reported from.
func (h *RepoHub) Broadcast(ev ProgressEvent) {
	ev.Namespace, ev.Name = h.Namespace, h.Name
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("broadcast channel full, dropping progress event", "op", ev.Op)
	}
}

func (h *RepoHub) registerClient(conn *websocket.Conn) *sync.Mutex {
	writeMu := &sync.Mutex{}
	h.clientsMu.Lock()
	h.clients[conn] = writeMu
	h.clientsMu.Unlock()
	h.logger.Info("websocket client connected", "addr", conn.RemoteAddr())
	return writeMu
}

func (h *RepoHub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
}

func (h *RepoHub) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer h.clientWg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("recovered panic in clientReadPump", "addr", conn.RemoteAddr(), "panic", r)
		}
		close(done)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

func (h *RepoHub) clientWritePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	defer h.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer h.removeClient(conn)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err1 := conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err2 error
			if err1 == nil {
				err2 = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()
			if err1 != nil || err2 != nil {
				return
			}
		}
	}
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
)

// Server hosts one or more bare oxen repositories under a data
// directory, serving the repo wire protocol per repository plus a
// WebSocket progress feed, repo management endpoints, rate limiting,
// and a health check. Repos here have no working directory; the
// server only stores and answers transfer requests for them.
type Server struct {
	addr        string
	dataDir     string
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger
	cacheSize   int

	hubsMu sync.RWMutex
	hubs   map[string]*RepoHub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server that hosts repositories under dataDir.
func NewServer(dataDir, addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		dataDir:     dataDir,
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      slog.Default(),
		cacheSize:   readCacheSize(),
		hubs:        make(map[string]*RepoHub),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// readCacheSize reads the cache size from the OXEN_SERVER_CACHE_SIZE env var.
func readCacheSize() int {
	cacheSize := defaultCacheSize
	if raw := os.Getenv("OXEN_SERVER_CACHE_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cacheSize = n
		}
	}
	return cacheSize
}

func repoStorePaths(dataDir, ns, name string) (oxenDir, nodesDir, versionsDir, refsDir, headPath string) {
	root := filepath.Join(dataDir, ns, name)
	oxenDir = filepath.Join(root, ".oxen")
	nodesDir = filepath.Join(oxenDir, "tree", "nodes")
	versionsDir = filepath.Join(oxenDir, "versions")
	refsDir = filepath.Join(oxenDir, "refs")
	headPath = filepath.Join(oxenDir, "HEAD")
	return
}

// createRepo initializes a fresh bare store trio for ns/name. Unlike
// internal/repo.Init, there is no working directory, stage, or index —
// a server-hosted repo is only ever written to via the wire protocol.
func (s *Server) createRepo(ns, name string) (*RepoHub, error) {
	oxenDir, nodesDir, versionsDir, refsDir, _ := repoStorePaths(s.dataDir, ns, name)

	if _, err := os.Stat(oxenDir); err == nil {
		return nil, oxerr.New(oxerr.KindAlreadyExists, fmt.Sprintf("%s/%s already exists", ns, name))
	}
	if err := os.MkdirAll(nodesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}
	if err := os.MkdirAll(versionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}
	if err := os.MkdirAll(refsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}

	return s.getOrCreateHub(ns, name)
}

// getOrCreateHub returns the RepoHub for ns/name, opening its stores and
// starting its broadcast/watcher goroutines on first access. Uses
// double-checked locking to avoid opening the same stores twice under
// concurrent requests.
func (s *Server) getOrCreateHub(ns, name string) (*RepoHub, error) {
	key := ns + "/" + name

	s.hubsMu.RLock()
	hub, exists := s.hubs[key]
	s.hubsMu.RUnlock()
	if exists {
		return hub, nil
	}

	oxenDir, nodesDir, versionsDir, refsDir, headPath := repoStorePaths(s.dataDir, ns, name)
	if _, err := os.Stat(oxenDir); err != nil {
		return nil, oxerr.New(oxerr.KindNotFound, fmt.Sprintf("%s/%s not found", ns, name))
	}

	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	if hub, exists = s.hubs[key]; exists {
		return hub, nil
	}

	nodes, err := nodestore.New(nodesDir)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", ns, name, err)
	}
	cs, err := content.New(versionsDir, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", ns, name, err)
	}
	refs, err := refstore.New(refsDir, headPath)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", ns, name, err)
	}

	hub = NewRepoHub(HubConfig{
		Namespace: ns, Name: name,
		Nodes: nodes, Content: cs, Refs: refs,
		CacheSize: s.cacheSize, Logger: s.logger,
	})
	hub.Start()
	if err := hub.watchRefs(filepath.Join(refsDir, "heads")); err != nil {
		s.logger.Warn("could not watch refs directory", "repo", key, "err", err)
	}
	s.hubs[key] = hub

	s.logger.Info("opened repo", "repo", key)
	return hub, nil
}

// Start begins serving and blocks until the server exits or encounters a fatal error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/repos", s.rateLimiter.middleware(s.handleRepos))
	mux.HandleFunc("/repos/", s.rateLimiter.middleware(s.handleRepoRoutes))

	handler := corsMiddleware(requestLogger(s.logger, mux))

	// WriteTimeout must remain 0 because WebSocket connections are long-lived.
	// Non-WebSocket wire-protocol requests get their own per-request
	// deadline in handleRepoRoutes via writeDeadline.
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("oxen-server starting", "addr", "http://"+s.addr, "dataDir", s.dataDir)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and all open repo hubs.
func (s *Server) Shutdown() {
	start := time.Now()
	s.logger.Info("server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()
	s.wg.Wait()

	s.hubsMu.Lock()
	for key, hub := range s.hubs {
		hub.Close()
		delete(s.hubs, key)
	}
	s.hubsMu.Unlock()

	s.logger.Info("server shutdown complete", "elapsed", time.Since(start).Round(time.Millisecond))
}

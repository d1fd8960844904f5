package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// wireRequestTimeout bounds a single non-WebSocket wire-protocol request
// (everything except large blob transfers, which are chunked into
// individual part uploads that each fall under this deadline).
const wireRequestTimeout = 30 * time.Second

type createRepoRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type repoResponse struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleRepos dispatches /api/repos to the correct handler based on HTTP method.
func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRepo(w, r)
	case http.MethodGet:
		s.handleListRepos(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateRepo accepts a JSON body naming a namespace/name pair and
// creates a fresh bare repository (node/content/ref stores, no working
// directory) under the server's data directory.
func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req createRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateRepoToken(req.Namespace); err != nil {
		http.Error(w, "invalid namespace: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateRepoToken(req.Name); err != nil {
		http.Error(w, "invalid name: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.createRepo(req.Namespace, req.Name); err != nil {
		if oxerr.Is(err, oxerr.KindAlreadyExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(repoResponse{Namespace: req.Namespace, Name: req.Name})
}

// handleListRepos walks the data directory two levels deep and reports
// every namespace/name pair with a .oxen store underneath it.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.listRepos()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(repos)
}

func (s *Server) listRepos() ([]repoResponse, error) {
	var out []repoResponse

	namespaces, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("list repos: %w", err)
	}
	for _, ns := range namespaces {
		if !ns.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(s.dataDir, ns.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(s.dataDir, ns.Name(), name.Name(), ".oxen")); err == nil {
				out = append(out, repoResponse{Namespace: ns.Name(), Name: name.Name()})
			}
		}
	}
	return out, nil
}

// handleRepoRoutes dispatches /repos/{ns}/{name}/... to the wire
// protocol handler owned by that repo's RepoHub, or to repo-deletion
// when the remainder is empty and the method is DELETE.
func (s *Server) handleRepoRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/repos/")
	ns, name, remainder, ok := splitRepoPath(path)
	if !ok {
		http.Error(w, "missing namespace/name", http.StatusBadRequest)
		return
	}

	if remainder == "" && r.Method == http.MethodDelete {
		s.handleDeleteRepo(w, r, ns, name)
		return
	}

	hub, err := s.getOrCreateHub(ns, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if remainder == "/ws" {
		r = r.WithContext(withHubCtx(r.Context(), hub))
		s.handleWebSocket(w, r)
		return
	}

	op, phase := classifyOp(remainder, r.Method)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	wireHandler := hub.RepoServer.Handler(fmt.Sprintf("/repos/%s/%s", ns, name))
	writeDeadline(wireRequestTimeout, wireHandler)(rec, r)

	if op != "" && rec.status < 400 {
		hub.Broadcast(ProgressEvent{Op: op, Phase: phase})
	}
}

// handleDeleteRepo closes any open hub for ns/name and removes its
// directory from the data directory.
func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request, ns, name string) {
	key := ns + "/" + name

	s.hubsMu.Lock()
	hub, exists := s.hubs[key]
	if exists {
		delete(s.hubs, key)
	}
	s.hubsMu.Unlock()
	if exists {
		hub.Close()
	}

	if err := os.RemoveAll(filepath.Join(s.dataDir, ns, name)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// splitRepoPath splits "{ns}/{name}" or "{ns}/{name}/{remainder...}" into
// its three parts. remainder always starts with "/" when non-empty.
func splitRepoPath(path string) (ns, name, remainder string, ok bool) {
	segs := strings.SplitN(path, "/", 3)
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", "", "", false
	}
	ns, name = segs[0], segs[1]
	if len(segs) == 3 {
		remainder = "/" + segs[2]
	}
	return ns, name, remainder, true
}

// classifyOp derives a coarse transfer-progress label from the wire
// protocol path RepoServer.Handler just served, mirroring the
// by-path/by-method dispatch RepoServer.Handler itself uses.
func classifyOp(remainder, method string) (op, phase string) {
	switch {
	case strings.HasPrefix(remainder, "/branches/") && method == http.MethodPut:
		return "push", "branch-updated"
	case remainder == "/nodes/missing" && method == http.MethodPost:
		return "fetch", "checked-missing"
	case strings.HasPrefix(remainder, "/nodes/") && method == http.MethodPost:
		return "push", "received-node"
	case strings.HasPrefix(remainder, "/nodes/") && method == http.MethodGet:
		return "fetch", "sent-node"
	case strings.Contains(remainder, "/parts/") && method == http.MethodPost:
		return "push", "received-blob-part"
	case strings.HasSuffix(remainder, "/complete") && method == http.MethodPost:
		return "push", "received-blob"
	case strings.HasPrefix(remainder, "/blobs/") && method == http.MethodGet:
		return "fetch", "sent-blob"
	default:
		return "", ""
	}
}

// validateRepoToken rejects namespace/name values that could escape the
// data directory layout once joined with filepath.Join.
func validateRepoToken(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.ContainsAny(s, "/\\\x00") || s == "." || s == ".." {
		return fmt.Errorf("invalid characters")
	}
	return nil
}

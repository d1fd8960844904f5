package transfer

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/merkle"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
)

// RepoServer serves the nine endpoints of the wire protocol for
// a single repository (namespace/name are fixed at construction; a
// multi-repository deployment wires one RepoServer per path prefix).
type RepoServer struct {
	Nodes         *nodestore.Store
	Content       *content.Store
	Refs          *refstore.Store
	MinVersion    int
	DefaultBranch string
	Logger        *slog.Logger

	mu    sync.Mutex
	parts map[hashing.Hash]map[int][]byte
}

// NewRepoServer constructs a RepoServer over an existing store trio.
func NewRepoServer(nodes *nodestore.Store, cs *content.Store, refs *refstore.Store) *RepoServer {
	return &RepoServer{
		Nodes: nodes, Content: cs, Refs: refs,
		MinVersion: 1, DefaultBranch: "main",
		Logger: slog.Default(),
		parts:  map[hashing.Hash]map[int][]byte{},
	}
}

// Handler dispatches /repos/{ns}/{name}/... requests, mirroring the
// teacher's prefix-strip-then-switch dispatch in handleRepoRoutes: strip
// the namespace/name prefix this server owns, then route on what
// remains.
func (s *RepoServer) Handler(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		remainder := strings.TrimPrefix(r.URL.Path, prefix)

		switch {
		case remainder == "" && r.Method == http.MethodGet:
			s.handleRepoInfo(w, r)
		case strings.HasPrefix(remainder, "/branches/") && r.Method == http.MethodGet:
			s.handleGetBranch(w, r, strings.TrimPrefix(remainder, "/branches/"))
		case strings.HasPrefix(remainder, "/branches/") && r.Method == http.MethodPut:
			s.handleSetBranch(w, r, strings.TrimPrefix(remainder, "/branches/"))
		case remainder == "/nodes/missing" && r.Method == http.MethodPost:
			s.handleMissingNodes(w, r)
		case strings.HasPrefix(remainder, "/nodes/") && r.Method == http.MethodPost:
			s.handlePutNode(w, r, strings.TrimPrefix(remainder, "/nodes/"))
		case strings.HasPrefix(remainder, "/nodes/") && r.Method == http.MethodGet:
			s.handleGetNode(w, r, strings.TrimPrefix(remainder, "/nodes/"))
		case strings.Contains(remainder, "/parts/") && r.Method == http.MethodPost:
			s.handlePutBlobPart(w, r, remainder)
		case strings.HasSuffix(remainder, "/complete") && r.Method == http.MethodPost:
			s.handleCompleteBlob(w, r, remainder)
		case strings.HasPrefix(remainder, "/blobs/") && r.Method == http.MethodGet:
			s.handleGetBlob(w, r, strings.TrimPrefix(remainder, "/blobs/"))
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func (s *RepoServer) handleRepoInfo(w http.ResponseWriter, r *http.Request) {
	branches, err := s.Refs.ListBranches()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := struct {
		MinVersion    int    `json:"min_version"`
		DefaultBranch string `json:"default_branch"`
		Empty         bool   `json:"empty"`
	}{MinVersion: s.MinVersion, DefaultBranch: s.DefaultBranch, Empty: len(branches) == 0}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Error("failed to encode repo info response", "err", err)
	}
}

func (s *RepoServer) handleGetBranch(w http.ResponseWriter, r *http.Request, branch string) {
	h, err := s.Refs.GetBranch(branch)
	if err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			http.Error(w, "branch not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Hash string `json:"hash"`
	}{Hash: h.String()})
}

func (s *RepoServer) handleSetBranch(w http.ResponseWriter, r *http.Request, branch string) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req struct {
		Expected string `json:"expected"`
		New      string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	expected, err := hashing.Parse(req.Expected)
	if err != nil {
		http.Error(w, "invalid expected hash", http.StatusBadRequest)
		return
	}
	newHash, err := hashing.Parse(req.New)
	if err != nil {
		http.Error(w, "invalid new hash", http.StatusBadRequest)
		return
	}

	current, err := s.Refs.GetBranch(branch)
	if err != nil && !oxerr.Is(err, oxerr.KindNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if current != expected {
		http.Error(w, "non-fast-forward", http.StatusConflict)
		return
	}
	if err := s.Refs.SetBranch(branch, newHash); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *RepoServer) handleMissingNodes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
	var req struct {
		Hashes []string `json:"hashes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var missing []string
	for _, hs := range req.Hashes {
		h, err := hashing.Parse(hs)
		if err != nil {
			http.Error(w, "invalid hash "+hs, http.StatusBadRequest)
			return
		}
		if !s.Nodes.HasNode(h) {
			missing = append(missing, hs)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Missing []string `json:"missing"`
	}{Missing: missing})
}

func (s *RepoServer) handlePutNode(w http.ResponseWriter, r *http.Request, hashStr string) {
	h, err := hashing.Parse(hashStr)
	if err != nil {
		http.Error(w, "invalid node hash", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	n, err := merkle.Deserialize(data)
	if err != nil {
		http.Error(w, "malformed node", http.StatusBadRequest)
		return
	}
	if n.Hash != h {
		http.Error(w, "node hash mismatch", http.StatusBadRequest)
		return
	}
	if err := s.Nodes.PutNode(n); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *RepoServer) handleGetNode(w http.ResponseWriter, r *http.Request, hashStr string) {
	h, err := hashing.Parse(hashStr)
	if err != nil {
		http.Error(w, "invalid node hash", http.StatusBadRequest)
		return
	}
	n, err := s.Nodes.GetNode(h)
	if err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			http.Error(w, "node not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := merkle.Serialize(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *RepoServer) handlePutBlobPart(w http.ResponseWriter, r *http.Request, remainder string) {
	// remainder looks like "/blobs/{h}/parts/{i}".
	rest := strings.TrimPrefix(remainder, "/blobs/")
	segs := strings.SplitN(rest, "/parts/", 2)
	if len(segs) != 2 {
		http.Error(w, "malformed path", http.StatusBadRequest)
		return
	}
	h, err := hashing.Parse(segs[0])
	if err != nil {
		http.Error(w, "invalid blob hash", http.StatusBadRequest)
		return
	}
	partIndex, err := strconv.Atoi(segs[1])
	if err != nil || partIndex < 0 {
		http.Error(w, "invalid part index", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, PartSize+1024))
	if err != nil {
		http.Error(w, "failed to read part body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.parts[h] == nil {
		s.parts[h] = map[int][]byte{}
	}
	s.parts[h][partIndex] = data
	s.mu.Unlock()

	sum := sha1.Sum(data)
	w.Header().Set("ETag", hex.EncodeToString(sum[:]))
	w.WriteHeader(http.StatusOK)
}

func (s *RepoServer) handleCompleteBlob(w http.ResponseWriter, r *http.Request, remainder string) {
	hashStr := strings.TrimSuffix(strings.TrimPrefix(remainder, "/blobs/"), "/complete")
	h, err := hashing.Parse(hashStr)
	if err != nil {
		http.Error(w, "invalid blob hash", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		ETags []string `json:"etags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	parts := s.parts[h]
	delete(s.parts, h)
	s.mu.Unlock()

	var data []byte
	for i := range req.ETags {
		p, ok := parts[i]
		if !ok {
			http.Error(w, fmt.Sprintf("missing part %d", i), http.StatusBadRequest)
			return
		}
		data = append(data, p...)
	}
	got, err := s.Content.Put(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if got != h {
		http.Error(w, "assembled blob hash mismatch", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *RepoServer) handleGetBlob(w http.ResponseWriter, r *http.Request, hashStr string) {
	h, err := hashing.Parse(hashStr)
	if err != nil {
		http.Error(w, "invalid blob hash", http.StatusBadRequest)
		return
	}
	if !s.Content.Exists(h) {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	rc, err := s.Content.Get(h)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}

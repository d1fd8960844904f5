// Package refstore implements the reference store: named
// mutable pointers (branches) to a commit hash, plus the HEAD pointer that
// is either attached to a branch name or detached at a raw commit hash.
package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// hashLikeName matches strings that look like a hex commit-id prefix, which
// branch names are never allowed to collide with.
var hashLikeName = regexp.MustCompile(`^[0-9a-f]{4,}$`)

// Store persists branch pointers under root/heads/<name> and HEAD under
// root/../HEAD (one level up, matching on-disk layout where
// refs/ and HEAD are siblings inside .oxen/).
type Store struct {
	refsDir string
	headPath string

	mu sync.RWMutex
}

// New returns a Store whose branch heads live under refsDir/heads and whose
// HEAD file is headPath.
func New(refsDir, headPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(refsDir, "heads"), 0o755); err != nil {
		return nil, fmt.Errorf("refstore: create refs dir: %w", err)
	}
	return &Store{refsDir: refsDir, headPath: headPath}, nil
}

func (s *Store) branchPath(name string) string {
	return filepath.Join(s.refsDir, "heads", name)
}

// GetBranch resolves name to its commit hash.
func (s *Store) GetBranch(name string) (hashing.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.branchPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return hashing.Hash{}, oxerr.Wrap(oxerr.KindNotFound, fmt.Sprintf("branch %q", name), err)
		}
		return hashing.Hash{}, oxerr.Wrap(oxerr.KindIO, "read branch", err)
	}
	return hashing.Parse(strings.TrimSpace(string(data)))
}

// ListBranches returns all branch names in lexical order.
func (s *Store) ListBranches() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(filepath.Join(s.refsDir, "heads"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SetBranch creates or advances name to point at hash. Branch creation
// enforces uniqueness against hash-like names.
func (s *Store) SetBranch(name string, hash hashing.Hash) error {
	if hashLikeName.MatchString(name) {
		return oxerr.New(oxerr.KindInvalidArgument, fmt.Sprintf("branch name %q looks like a commit hash prefix", name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomicString(s.branchPath(name), hash.String()+"\n")
}

// DeleteBranch removes name. Deleting the currently checked-out branch is
// rejected; deleting a branch whose tip is unreachable from HEAD
// requires force=true, enforced by the caller which has access to the
// commit graph (refstore itself has none).
func (s *Store) DeleteBranch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentBranchLocked()
	if err == nil && current == name {
		return oxerr.New(oxerr.KindInvalidArgument, fmt.Sprintf("cannot delete currently checked-out branch %q", name))
	}
	if err := os.Remove(s.branchPath(name)); err != nil {
		if os.IsNotExist(err) {
			return oxerr.Wrap(oxerr.KindNotFound, fmt.Sprintf("branch %q", name), err)
		}
		return oxerr.Wrap(oxerr.KindIO, "delete branch", err)
	}
	return nil
}

// HeadValue is the parsed contents of HEAD: either an attached branch name
// or a detached commit hash.
type HeadValue struct {
	Branch   string // non-empty when attached
	Detached hashing.Hash
}

// GetHead reads and parses HEAD. Returns oxerr.KindNotFound if the
// repository is uninitialised.
func (s *Store) GetHead() (HeadValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.headPath)
	if err != nil {
		if os.IsNotExist(err) {
			return HeadValue{}, oxerr.Wrap(oxerr.KindNotFound, "HEAD", err)
		}
		return HeadValue{}, oxerr.Wrap(oxerr.KindIO, "read HEAD", err)
	}
	return parseHead(strings.TrimSpace(string(data)))
}

func parseHead(s string) (HeadValue, error) {
	if strings.HasPrefix(s, "ref: ") {
		return HeadValue{Branch: strings.TrimPrefix(s, "ref: ")}, nil
	}
	h, err := hashing.Parse(s)
	if err != nil {
		return HeadValue{}, fmt.Errorf("refstore: malformed HEAD %q: %w", s, err)
	}
	return HeadValue{Detached: h}, nil
}

// SetHeadBranch attaches HEAD to a branch name.
func (s *Store) SetHeadBranch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomicString(s.headPath, "ref: "+name+"\n")
}

// SetHeadDetached points HEAD directly at a commit hash.
func (s *Store) SetHeadDetached(hash hashing.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomicString(s.headPath, hash.String()+"\n")
}

// CurrentBranch returns the attached branch name, or ("", false) when HEAD
// is detached or unset.
func (s *Store) CurrentBranch() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, err := s.currentBranchLocked()
	return name, err == nil
}

func (s *Store) currentBranchLocked() (string, error) {
	data, err := os.ReadFile(s.headPath)
	if err != nil {
		return "", err
	}
	head, err := parseHead(strings.TrimSpace(string(data)))
	if err != nil {
		return "", err
	}
	if head.Branch == "" {
		return "", fmt.Errorf("refstore: HEAD is detached")
	}
	return head.Branch, nil
}

// ResolveHead resolves HEAD all the way to a commit hash, following the
// branch pointer if attached.
func (s *Store) ResolveHead() (hashing.Hash, error) {
	head, err := s.GetHead()
	if err != nil {
		return hashing.Hash{}, err
	}
	if head.Branch != "" {
		return s.GetBranch(head.Branch)
	}
	return head.Detached, nil
}

func writeAtomicString(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("refstore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("refstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("refstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("refstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("refstore: rename into place: %w", err)
	}
	return nil
}

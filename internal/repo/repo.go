// Package repo ties together the store, stage, commit, checkout, merge,
// and transfer engines into the operations a command layer actually
// calls: init, add, rm, status, commit, checkout, branch, merge, diff,
// restore, push, fetch, pull, clone. It also owns the exclusive write
// lock: every mutating operation acquires it for the duration
// of the call.
package repo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oxenhq/oxen-core/internal/content"
	"github.com/oxenhq/oxen-core/internal/nodestore"
	"github.com/oxenhq/oxen-core/internal/oxerr"
	"github.com/oxenhq/oxen-core/internal/refstore"
	"github.com/oxenhq/oxen-core/internal/repoconfig"
	"github.com/oxenhq/oxen-core/internal/stage"
	"github.com/oxenhq/oxen-core/internal/wcindex"
)

const defaultBranch = "main"

// Config configures a Repository beyond what's recorded on disk.
type Config struct {
	Logger    *slog.Logger
	ChunkSize int // 0 uses content.DefaultChunkSize
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Repository is a single checked-out working copy plus its .oxen store.
type Repository struct {
	WorkDir string
	OxenDir string

	Nodes   *nodestore.Store
	Content *content.Store
	Refs    *refstore.Store
	Index   *wcindex.Index
	Stage   *stage.Stager
	Config  *repoconfig.Config

	logger *slog.Logger
}

func oxenPaths(workDir string) (oxenDir, nodesDir, versionsDir, refsDir, headPath, stageDir, indexDir string) {
	oxenDir = filepath.Join(workDir, ".oxen")
	nodesDir = filepath.Join(oxenDir, "tree", "nodes")
	versionsDir = filepath.Join(oxenDir, "versions")
	refsDir = filepath.Join(oxenDir, "refs")
	headPath = filepath.Join(oxenDir, "HEAD")
	stageDir = filepath.Join(oxenDir, "stage")
	indexDir = filepath.Join(oxenDir, "index")
	return
}

// Init creates a fresh .oxen directory under workDir and returns its
// Repository handle. HEAD is attached to defaultBranch but the branch
// itself does not yet exist until the first commit.
func Init(workDir string, cfg Config) (*Repository, error) {
	cfg.defaults()
	oxenDir, _, _, _, _, _, _ := oxenPaths(workDir)

	if _, err := os.Stat(oxenDir); err == nil {
		return nil, oxerr.New(oxerr.KindAlreadyExists, fmt.Sprintf("%s is already an oxen repository", workDir))
	}
	if err := os.MkdirAll(oxenDir, 0o755); err != nil {
		return nil, fmt.Errorf("repo: init: create .oxen: %w", err)
	}

	rcfg := repoconfig.New()
	if err := rcfg.Save(oxenDir); err != nil {
		return nil, fmt.Errorf("repo: init: write config: %w", err)
	}

	repository, err := open(workDir, cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Refs.SetHeadBranch(defaultBranch); err != nil {
		return nil, fmt.Errorf("repo: init: set HEAD: %w", err)
	}
	return repository, nil
}

// Open opens an existing repository rooted at workDir.
func Open(workDir string, cfg Config) (*Repository, error) {
	cfg.defaults()
	oxenDir, _, _, _, _, _, _ := oxenPaths(workDir)
	if _, err := os.Stat(oxenDir); err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.New(oxerr.KindNotFound, fmt.Sprintf("%s is not an oxen repository", workDir))
		}
		return nil, err
	}
	return open(workDir, cfg)
}

// Discover walks upward from startDir looking for a .oxen directory, the
// way most VCS CLIs resolve their working directory from any subdirectory.
func Discover(startDir string, cfg Config) (*Repository, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, statErr := os.Stat(filepath.Join(dir, ".oxen")); statErr == nil {
			return Open(dir, cfg)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, oxerr.New(oxerr.KindNotFound, "not an oxen repository (or any parent up to /)")
		}
		dir = parent
	}
}

func open(workDir string, cfg Config) (*Repository, error) {
	oxenDir, nodesDir, versionsDir, refsDir, headPath, stageDir, indexDir := oxenPaths(workDir)

	nodes, err := nodestore.New(nodesDir)
	if err != nil {
		return nil, err
	}
	cs, err := content.New(versionsDir, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	refs, err := refstore.New(refsDir, headPath)
	if err != nil {
		return nil, err
	}
	idx, err := wcindex.New(indexDir)
	if err != nil {
		return nil, err
	}
	stager, err := stage.New(stageDir)
	if err != nil {
		return nil, err
	}
	rcfg, err := repoconfig.Load(oxenDir)
	if err != nil {
		if oxerr.Is(err, oxerr.KindNotFound) {
			rcfg = repoconfig.New()
		} else {
			return nil, err
		}
	}

	return &Repository{
		WorkDir: workDir,
		OxenDir: oxenDir,
		Nodes:   nodes,
		Content: cs,
		Refs:    refs,
		Index:   idx,
		Stage:   stager,
		Config:  rcfg,
		logger:  cfg.Logger,
	}, nil
}

// SaveConfig persists any change made to r.Config back to config.toml.
func (r *Repository) SaveConfig() error {
	return r.Config.Save(r.OxenDir)
}

// CurrentBranch returns the attached branch name, or ("", false) if HEAD
// is detached or unset.
func (r *Repository) CurrentBranch() (string, bool) {
	return r.Refs.CurrentBranch()
}

func (r *Repository) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

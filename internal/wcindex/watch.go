package wcindex

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oxenhq/oxen-core/internal/ignore"
)

// debounceTime coalesces bursts of filesystem events (e.g. an editor's
// write-then-rename save) into a single invalidation.
const debounceTime = 100 * time.Millisecond

// rescanInterval triggers a full directory walk even without fsnotify
// activity, covering watches lost to directories created and populated
// faster than walkAndWatch can keep up (a known fsnotify limitation on
// deeply nested trees).
const rescanInterval = 5 * time.Second

// Watcher pushes paths invalidated by filesystem activity onto Changed, so
// a caller can re-scan only what moved instead of the whole working
// directory. No cmd/oxen command starts a Watcher; `oxen status` has no
// watch flag.
type Watcher struct {
	workDir string
	ignore  *ignore.Matcher
	logger  *slog.Logger

	Changed chan string

	wg sync.WaitGroup
}

// NewWatcher builds a Watcher rooted at workDir. Call Start to begin
// watching and Stop (or cancel ctx) to tear it down.
func NewWatcher(workDir string, m *ignore.Matcher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		workDir: workDir,
		ignore:  m,
		logger:  logger,
		Changed: make(chan string, 64),
	}
}

// Start begins watching until ctx is cancelled. It returns once the initial
// recursive watch is installed; events stream to w.Changed in the background.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	walkAndWatch(watcher, w.workDir, w.ignore, w.logger)

	w.wg.Add(2)
	go w.watchLoop(ctx, watcher)
	go w.rescanLoop(ctx)

	w.logger.Info("watching working directory", "dir", w.workDir)
	return nil
}

// Wait blocks until both internal goroutines have exited, for use after the
// caller cancels the context passed to Start.
func (w *Watcher) Wait() {
	w.wg.Wait()
	close(w.Changed)
}

// walkAndWatch adds fsnotify watches to dir and all its non-ignored
// subdirectories. Missing directories are silently skipped.
func walkAndWatch(watcher *fsnotify.Watcher, dir string, m *ignore.Matcher, logger *slog.Logger) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	err = filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr
		}
		if !fi.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr == nil && rel != "." {
			rel = filepath.ToSlash(rel)
			if rel == ".oxen" || m.IsIgnored(rel, true) {
				return filepath.SkipDir
			}
		}
		if addErr := watcher.Add(path); addErr != nil {
			logger.Warn("failed to watch directory", "dir", path, "err", addErr)
		}
		return nil
	})
	if err != nil {
		logger.Warn("failed to walk directory tree", "dir", dir, "err", err)
	}
}

func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Error("failed to close watcher", "err", err)
		}
	}()

	debounced := make(map[string]*time.Timer)
	defer func() {
		for _, t := range debounced {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if shouldIgnoreEvent(event) {
				continue
			}
			rel, err := filepath.Rel(w.workDir, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
				walkAndWatch(watcher, event.Name, w.ignore, w.logger)
			}

			if t, exists := debounced[rel]; exists {
				t.Stop()
			}
			debounced[rel] = time.AfterFunc(debounceTime, func() {
				if ctx.Err() != nil {
					return
				}
				select {
				case w.Changed <- rel:
				case <-ctx.Done():
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "err", err)
		}
	}
}

// rescanLoop periodically emits a full-rescan signal (empty path) so a
// caller that missed a watch (e.g. a directory populated faster than
// walkAndWatch could keep up) eventually converges.
func (w *Watcher) rescanLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.Changed <- "":
			case <-ctx.Done():
			}
		}
	}
}

func shouldIgnoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	path := event.Name

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	if strings.HasSuffix(base, ".tmp-") || strings.Contains(base, ".tmp-") {
		return true
	}
	if strings.Contains(path, string(filepath.Separator)+".oxen"+string(filepath.Separator)) {
		return true
	}
	return false
}

package server

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const refsDebounce = 100 * time.Millisecond

// watchRefs watches refsDir for branch pointer changes, whether made by
// this hub's own handlers or from outside them (a second oxen-server
// process sharing the same data directory, or an operator editing refs
// by hand), and broadcasts a branch-update event, so connected clients don't have to
// poll GET /branches/{name} to notice a push landed.
func (h *RepoHub) watchRefs(refsDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(refsDir); err != nil {
		_ = watcher.Close()
		return err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		for {
			select {
			case <-h.ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldIgnoreRefEvent(event) {
					continue
				}
				branch := filepath.Base(event.Name)

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(refsDebounce, func() {
					if h.ctx.Err() != nil {
						return
					}
					h.Broadcast(ProgressEvent{Op: "branch-update", Phase: "changed", Branch: branch})
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Error("refs watcher error", "err", err)
			}
		}
	}()
	return nil
}

func shouldIgnoreRefEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	return strings.HasSuffix(event.Name, ".lock")
}

package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches bursts of filesystem events (editor save dances,
// bulk copies, renames) into a single reindex pass.
const debounceWindow = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and schedules a
// reindex pass whenever Markdown files change on disk. Passes are
// debounced, so a burst of events results in one pass; the indexer's
// checksum diffing keeps that pass cheap.
//
// New directories created at runtime are automatically added to the watch
// list. Remove and Rename events on directories are indistinguishable from
// file events once the path is gone, so both schedule a pass regardless of
// extension.
func Watch(ctx context.Context, ix *Indexer, vaultRoot string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: running", slog.String("root", vaultRoot))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounceWindow)
			timerCh = timer.C
		} else {
			timer.Reset(debounceWindow)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if _, passErr := ix.Reindex(ctx); passErr != nil {
				logger.Error("watcher: reindex failed", slog.String("error", passErr.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: cannot watch new dir",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: tracking new dir", slog.String("path", absPath))
					}
					schedule()
					continue
				}
			}

			// Remove and Rename arrive after the path is gone; a vanished
			// directory full of notes looks identical to a vanished file,
			// so let the pass sort it out.
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: path gone", slog.String("path", absPath))
				schedule()
				continue
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				logger.Debug("watcher: changed", slog.String("path", absPath))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: fsnotify error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive registers root and every directory below it.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

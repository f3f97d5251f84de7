package sifter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long Watch waits after the last change before it
// translates the changed files.
const DefaultDebounce = 200 * time.Millisecond

// ErrNoWatchRoots is returned by Watch when it has nothing to watch.
var ErrNoWatchRoots = errors.New("no directories to watch")

// ReportFunc receives the outcome of every translation Watch runs.
type ReportFunc func(*TranslateReport, error)

// Watch translates files under roots whenever they change, until ctx is
// done. Changes are collected until no event arrived for debounce. Removed
// files have their model and catalog entry deleted.
func (e *Engine) Watch(ctx context.Context, roots []string, debounce time.Duration, onReport ReportFunc) error {
	if len(roots) == 0 {
		return ErrNoWatchRoots
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sifter: watch: %w", err)
	}
	defer w.Close()

	for _, root := range roots {
		if err := e.watchTree(w, root); err != nil {
			return err
		}
	}
	e.logger.WithField("roots", roots).Info("watching for changes")

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.WithError(err).Warn("watcher error")
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.handleEvent(w, ev, pending) {
				timer.Reset(debounce)
			}
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			report, err := e.TranslateFiles(ctx, paths)
			if onReport != nil {
				onReport(report, err)
			}
		}
	}
}

// watchTree adds root and every directory below it that ListFiles would
// descend into.
func (e *Engine) watchTree(w *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
	if err != nil {
		return fmt.Errorf("sifter: watch %s: %w", root, err)
	}
	return nil
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// handleEvent updates pending for one event and reports whether a
// translation should be scheduled.
func (e *Engine) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, pending map[string]bool) bool {
	log := e.logger.WithFields(logrus.Fields{"file": ev.Name, "op": ev.Op.String()})
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(pending, ev.Name)
		e.forget(ev.Name)
		return false
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return false
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && !ignoredDir(info.Name()) {
				if err := e.watchTree(w, ev.Name); err != nil {
					log.WithError(err).Warn("watching new directory failed")
				}
			}
			return false
		}
		if e.excluded(filepath.ToSlash(ev.Name)) {
			return false
		}
		if _, ok := e.languageFor(ev.Name); !ok {
			return false
		}
		log.Debug("change queued")
		pending[ev.Name] = true
		return true
	}
	return false
}

// forget deletes the model of a removed source file. Only files the catalog
// knows can be forgotten.
func (e *Engine) forget(path string) {
	if e.store == nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	log := e.logger.WithField("file", abs)
	rec, err := e.store.ModelBySourcePath(abs)
	if err != nil {
		log.WithError(err).Warn("catalog lookup failed")
		return
	}
	if rec == nil {
		return
	}
	if err := os.Remove(rec.ModelPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("removing model failed")
	}
	if err := e.store.DeleteModel(rec.ModelID); err != nil {
		log.WithError(err).Warn("removing catalog entry failed")
		return
	}
	log.WithField("model_id", rec.ModelID).Info("model removed")
}

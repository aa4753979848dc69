package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calview/internal/log"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// localFiles maps each watched directory to the source file names in it.
func (r *Refresher) localFiles() map[string]map[string]bool {
	dirs := make(map[string]map[string]bool)
	for _, src := range r.opts.Sources {
		path, ok := src.LocalPath()
		if !ok {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		dir := filepath.Dir(abs)
		if dirs[dir] == nil {
			dirs[dir] = make(map[string]bool)
		}
		dirs[dir][filepath.Base(abs)] = true
	}
	return dirs
}

// Watch refreshes whenever a local source file changes, until ctx is done.
// Directories rather than files are watched so atomic-rename saves are
// seen. It returns nil immediately when there are no local sources.
func (r *Refresher) Watch(ctx context.Context, debounce time.Duration) error {
	dirs := r.localFiles()
	if len(dirs) == 0 {
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return err
		}
		appLog.Debug("watching source directory", "dir", dir)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	trigger := func(name string) {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		appLog.Debug("source change detected; scheduling refresh", "path", name)
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
				appLog.Error("file-triggered refresh reported errors", err, "path", name)
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("schedule: watcher closed")
			}
			names := dirs[filepath.Dir(ev.Name)]
			if !names[filepath.Base(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				trigger(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("schedule: watcher closed")
			}
			if err == nil {
				continue
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				appLog.Error("watch overflow; forcing refresh", err)
				trigger("")
				continue
			}
			appLog.Error("watch error", err)
		}
	}
}

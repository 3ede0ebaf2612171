package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "todox/pkg/logx"
)

const (
	watchDebounce = 250 * time.Millisecond
	rewatchMin    = 250 * time.Millisecond
	rewatchMax    = 5 * time.Second
)

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// WatchFile calls onChange once a burst of changes to path has been quiet
// for the debounce period. The parent directory is watched so files that
// editors replace by rename keep being tracked. A failed watcher is
// recreated with jittered backoff. WatchFile returns nil when ctx ends.
func WatchFile(ctx context.Context, path string, log logx.Logger, onChange func()) error {
	w := &fileWatcher{
		dir:      filepath.Dir(path),
		name:     filepath.Base(path),
		log:      log.With(logx.String("path", path)),
		onChange: onChange,
	}
	defer w.stopTimer()

	delay := rewatchMin
	for ctx.Err() == nil {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, errWatchHealthy) {
			delay = rewatchMin
			continue
		}
		wait := delay + rand.N(delay/2+1)
		w.log.Warn("file watcher failed; retrying", logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		delay = min(delay*2, rewatchMax)
	}
	return nil
}

// errWatchHealthy reports that a watcher ran and then its channels closed;
// it is restarted without backoff.
var errWatchHealthy = errors.New("watcher closed")

type fileWatcher struct {
	dir, name string
	log       logx.Logger
	onChange  func()

	mu    sync.Mutex
	timer *time.Timer
}

func (w *fileWatcher) watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Debug("watching file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errWatchHealthy
			}
			if ev.Op&relevantOps != 0 && strings.EqualFold(filepath.Base(ev.Name), w.name) {
				w.touch(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errWatchHealthy
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("watch events overflowed; reloading")
				w.touch(ctx)
				continue
			}
			return err
		}
	}
}

// touch (re)starts the debounce timer.
func (w *fileWatcher) touch(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() {
		if ctx.Err() == nil {
			w.onChange()
		}
	})
}

func (w *fileWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on write and hands the new Config to
// onChange. Only used when hot_reload.enabled is set; most settings
// (database DSN, gateway base URLs, port ranges) are baked into
// collaborators at startup and are not meaningfully reloadable, but
// security.jwt_secret/enable_auth are read fresh on every request and
// benefit from rotation without a restart.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path's containing directory (editors often
// replace a file rather than write in place, which only a directory watch
// catches reliably).
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := path
	if idx := lastSlash(path); idx >= 0 {
		dir = path[:idx]
	} else {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, onChange: onChange, watcher: fw}, nil
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

// Run watches until ctx is cancelled, debouncing bursts of filesystem
// events (editors commonly emit several in a row for one save) before
// reloading and invoking onChange.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var debounce *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			log.Printf("config hot-reload: %v", err)
			return
		}
		w.onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config hot-reload watcher error: %v", err)
		}
	}
}

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the latest valid version of a profile file. A rewrite that
// fails to read or validate is logged and leaves the previous version in
// place.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	latest  *Config
	changed chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Watch reads cfile and starts watching it for changes. The initial read
// must succeed.
func Watch(cfile string) (*Watcher, error) {
	conf, err := ReadConfig(cfile)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors often replace the file instead of writing it in place, so
	// watch the directory and filter by name.
	if err := fsw.Add(filepath.Dir(cfile)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfile, err)
	}
	w := &Watcher{
		path:    filepath.Clean(cfile),
		fsw:     fsw,
		latest:  conf,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Config returns the latest valid configuration.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Changed signals after a new configuration became available. Several
// reloads between two receives are reported once.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Close stops watching. Later calls return the result of the first.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("Config file watcher failed", "file", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	conf, err := ReadConfig(w.path)
	if err != nil {
		slog.Warn("Ignoring config file change", "file", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.latest = conf
	w.mu.Unlock()
	slog.Info("Config file reloaded", "file", w.path)

	select {
	case w.changed <- struct{}{}:
	default:
	}
}

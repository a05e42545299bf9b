package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/crawlpoint/connector/internal/logger"
)

// ChangeListener receives the freshly loaded configuration after the
// watched file changes. Listeners hold no reference back to the watcher;
// the lifecycle owns both.
type ChangeListener func(cfg *Config)

// Watcher reloads the configuration file on change and fans the result
// out to registered listeners. Reload failures keep the previous
// configuration and log the error.
type Watcher struct {
	path string

	mu        sync.Mutex
	listeners []ChangeListener

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher watches the given configuration file. Call Start to begin
// delivery and Stop to release the inotify handle.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}
	return &Watcher{path: path, fsw: fsw, done: make(chan struct{})}, nil
}

// Register adds one change listener. Safe to call before or after Start.
func (w *Watcher) Register(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop releases the watch. Safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watch error", logger.KeyError, err.Error())
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error("Config reload failed, keeping previous configuration",
			"path", w.path, logger.KeyError, err.Error())
		return
	}
	logger.Info("Configuration reloaded", "path", w.path)

	w.mu.Lock()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, l := range listeners {
		l(cfg)
	}
}

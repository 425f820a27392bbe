package modloader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigChangedCallback receives the re-parsed configuration after the
// watched file changes on disk.
type ConfigChangedCallback func(cfg Config)

// ConfigWatcher watches an orchestrator config file for changes. A running
// session never re-reads its settings, so the watcher's job is to tell the
// host that the next loading session should start from fresh configuration:
// on every change it re-parses the file, publishes a config-changed event
// through the supplied Subject, and invokes the callback.
type ConfigWatcher struct {
	path     string
	subject  Subject
	logger   Logger
	callback ConfigChangedCallback

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewConfigWatcher creates a watcher over path. subject may be nil when no
// event fan-out is wanted; callback may be nil when events suffice.
func NewConfigWatcher(path string, subject Subject, logger Logger, callback ConfigChangedCallback) *ConfigWatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ConfigWatcher{
		path:     path,
		subject:  subject,
		logger:   logger,
		callback: callback,
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself, because editors and config management tools replace files by
// rename, which drops a direct file watch.
func (w *ConfigWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true
	w.wg.Add(1)
	go w.loop()

	w.logger.Info("Config watcher started", "path", w.path)
	return nil
}

// Stop ends watching and waits for the watch loop to exit. Idempotent.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
	w.running = false
	w.logger.Info("Config watcher stopped")
}

func (w *ConfigWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isConfigChange(event) {
				continue
			}
			w.handleChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

// isConfigChange filters directory events down to writes, creates and
// renames of the watched file.
func (w *ConfigWatcher) isConfigChange(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}

func (w *ConfigWatcher) handleChange() {
	cfg, err := LoadConfigFile(w.path)
	if err != nil {
		w.logger.Error("Config file changed but could not be reloaded", "path", w.path, "error", err)
		return
	}

	w.logger.Info("Config file changed", "path", w.path)
	if w.subject != nil {
		event := NewCloudEvent(EventTypeConfigChanged, "modloader/configwatcher", cfg, nil)
		if err := w.subject.NotifyObservers(context.Background(), event); err != nil {
			w.logger.Error("Failed to notify observers of config change", "error", err)
		}
	}
	if w.callback != nil {
		w.callback(cfg)
	}
}

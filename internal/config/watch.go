package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ramble-labs/lectern/internal/logger"
)

// debounce absorbs the bursts of write events editors and atomic saves
// produce for a single logical change.
const debounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes and hands each
// valid new Config to a callback. Consumers rebuild their services from the
// fresh value and swap them in atomically; the previous Config is never
// mutated.
type Watcher struct {
	path     string
	onChange func(Config)
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: atomic saves replace the file, which would
	// otherwise orphan a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{path: path, onChange: onChange, fsw: fsw}, nil
}

// Start runs the watch loop until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher: %v", err)

		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				// A broken edit keeps the running configuration.
				logger.Warn("config reload rejected: %v", err)
				continue
			}
			logger.Info("configuration reloaded from %s", w.path)
			w.onChange(cfg)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Package watch reloads the hot-reloadable settings when the YAML config file changes.
package watch

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/rimio/sota-notifier/internal/config"
)

// Target receives reloaded settings.
type Target interface {
	SetThreshold(km float64)
	SetModes(modes []string)
}

// Watcher monitors the config file's directory, since editors often replace the file
// rather than write it in place.
type Watcher struct {
	path   string
	target Target
	pinned map[string]bool
	// applied is signalled after each successful reload; tests use it.
	applied chan struct{}
}

// New watches path. Keys in pinned (config.KeyDistance, config.KeyModes) came from the
// environment or a flag and are left alone on reload.
func New(path string, target Target, pinned map[string]bool) *Watcher {
	return &Watcher{path: filepath.Clean(path), target: target, pinned: pinned, applied: make(chan struct{}, 1)}
}

// Start begins watching and returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != w.path {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watch: error: %v", err)
			}
		}
	}()
	log.Printf("watch: config file=%s", w.path)
	return nil
}

// Reload re-reads the file and applies what it finds. A bad file is logged and the
// running settings are kept.
func (w *Watcher) Reload() {
	r, err := config.ReadReloadable(w.path)
	if err != nil {
		log.Printf("watch: reload skipped: %v", err)
		return
	}
	applied := []string{}
	if r.DistanceKm != nil {
		if w.pinned[config.KeyDistance] {
			log.Printf("watch: %s in file ignored, set by flag or environment", config.KeyDistance)
		} else {
			w.target.SetThreshold(*r.DistanceKm)
			applied = append(applied, config.KeyDistance)
		}
	}
	if r.HasModes {
		if w.pinned[config.KeyModes] {
			log.Printf("watch: %s in file ignored, set by environment", config.KeyModes)
		} else {
			w.target.SetModes(r.Modes)
			applied = append(applied, config.KeyModes)
		}
	}
	log.Printf("watch: reloaded file=%s applied=%v", w.path, applied)
	select {
	case w.applied <- struct{}{}:
	default:
	}
}

package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the bursts of filesystem events editors emit for
// a single save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the configuration file and rebuilds every built schema
// unit whenever the file changes. It blocks until ctx is cancelled and
// requires the registry to have been created with WithConfigFile.
func (r *Registry) Watch(ctx context.Context) error {
	if r.cfgPath == "" {
		return fmt.Errorf("registry: no config file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: watch: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(r.cfgPath)); err != nil {
		return fmt.Errorf("registry: watch: %w", err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(r.cfgPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error().Err(err).Msg("config watch error")
		case <-reload:
			r.reloadAndRebuild(ctx)
		}
	}
}

func (r *Registry) reloadAndRebuild(ctx context.Context) {
	cfg, err := LoadConfig(r.cfgPath)
	if err != nil {
		r.log.Error().Err(err).Str("path", r.cfgPath).Msg("config reload failed, keeping previous settings")
		return
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.log.Info().Str("path", r.cfgPath).Msg("configuration reloaded")

	for _, name := range r.Schemas() {
		if _, err := r.Build(ctx, name); err != nil {
			r.log.Warn().Err(err).Str("schema", name).Msg("rebuild completed with exclusions")
		}
	}
}

package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the catalog when the config file changes on disk and
// hands the new catalog to the callback. Reload failures keep the last
// good catalog.
type Watcher struct {
	logger     *zap.Logger
	loader     *Loader
	configPath string
	onChange   func(domain.Catalog)
}

func NewWatcher(loader *Loader, configPath string, onChange func(domain.Catalog), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		logger:     logger.Named("catalog_watcher"),
		loader:     loader,
		configPath: configPath,
		onChange:   onChange,
	}
}

// Run blocks until ctx is canceled. Editors replace config files rather
// than writing in place, so the parent directory is watched instead of
// the file itself.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcher.Errors:
			if err != nil {
				w.logger.Warn("config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		case <-timerChan(timer):
			timer = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	loaded, err := w.loader.Load(ctx, w.configPath)
	if err != nil {
		w.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	w.logger.Info("config reloaded",
		zap.String("path", w.configPath),
		zap.Int("servers", len(loaded.Servers)))
	if w.onChange != nil {
		w.onChange(loaded)
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

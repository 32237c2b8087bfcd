package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/log"
)

// reloadSettle is how long the watcher waits for a burst of file events to end.
const reloadSettle = 250 * time.Millisecond

// Holder holds the current configuration and reloads it from file on demand
// or when the file changes.
type Holder struct {
	mu      sync.RWMutex
	current Config
	path    string
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []func(Config)
}

// NewHolder creates a holder for a configuration loaded from path.
func NewHolder(initial Config, path string) *Holder {
	return &Holder{
		current: initial,
		path:    path,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to be called with every successfully reloaded configuration.
func (h *Holder) OnReload(fn func(Config)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads and validates the file again. On failure the previous
// configuration stays in effect.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)

	h.listenersMu.RLock()
	listeners := append([]func(Config){}, h.listeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(next)
	}

	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx is done.
// It watches the parent directory so editors that replace the file are seen.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.logger.Debug().Msg("no config file, watcher disabled")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(h.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("path", abs).Msg("watching configuration file")

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(reloadSettle)

		case <-settle:
			settle = nil
			_ = h.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (h *Holder) logChanges(prev, next Config) {
	if prev.Thresholds != next.Thresholds {
		h.logger.Info().
			Float64("boundary_low", next.Thresholds.BoundaryLow).
			Float64("boundary_high", next.Thresholds.BoundaryHigh).
			Int("debounce_ticks", next.Thresholds.DebounceTicks).
			Msg("thresholds changed")
	}

	restart := map[string]bool{
		"scenes":      prev.Scenes != next.Scenes,
		"tick_period": prev.TickPeriod != next.TickPeriod,
		"camera":      prev.Camera != next.Camera,
		"detector":    prev.Detector != next.Detector,
		"obs":         prev.OBS != next.OBS,
		"server":      prev.Server != next.Server,
		"store":       prev.Store != next.Store,
	}
	for section, changed := range restart {
		if changed {
			h.logger.Warn().Str("section", section).Msg("change takes effect after restart")
		}
	}
}

// Package app runs the tick loop that feeds camera samples to the scene
// engine and applies the resulting commands to OBS.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/log"
	"github.com/ayusman/autocam/internal/metrics"
	"github.com/ayusman/autocam/internal/scene"
	"github.com/ayusman/autocam/internal/store"
)

// Loop timing defaults.
const (
	DefaultTickPeriod    = 100 * time.Millisecond
	DefaultSwitchTimeout = 5 * time.Second
)

var (
	// ErrSourceUnavailable is returned by Run when the source cannot be opened.
	// The loop is never entered.
	ErrSourceUnavailable = errors.New("signal source unavailable")
	// ErrSourceLost is returned by Run after too many consecutive source errors.
	ErrSourceLost = errors.New("signal source lost")
	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("tick loop already running")
)

// Source produces one sample per tick.
type Source interface {
	Open() error
	Next(ctx context.Context) (scene.Sample, error)
	Close() error
}

// Sink applies scene commands.
type Sink interface {
	SwitchTo(ctx context.Context, id scene.ID) error
	Close() error
}

// Config holds configuration options for the tick loop.
type Config struct {
	Scenes     scene.Scenes
	Thresholds scene.Thresholds
	TickPeriod time.Duration
	// SourceErrorLimit is the number of consecutive source errors after which
	// Run gives up. Zero never gives up.
	SourceErrorLimit int
	// SwitchTimeout bounds a single sink call.
	SwitchTimeout time.Duration
}

// Transition is one committed scene change.
type Transition struct {
	ID       uuid.UUID `json:"id"`
	From     scene.ID  `json:"from"`
	To       scene.ID  `json:"to"`
	Position float64   `json:"position"`
	Tick     uint64    `json:"tick"`
	Applied  bool      `json:"applied"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Option configures an App.
type Option func(*App)

// WithStore journals transitions and persists the enabled toggle.
func WithStore(s *store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithObserver registers fn to be called with every transition, in commit
// order, on the loop goroutine. fn must not block.
func WithObserver(fn func(Transition)) Option {
	return func(a *App) {
		a.observers = append(a.observers, fn)
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// App owns the decision engine and drives it from a Source into a Sink.
type App struct {
	config    Config
	source    Source
	sink      Sink
	store     *store.Store
	observers []func(Transition)
	logger    zerolog.Logger

	mu             sync.RWMutex
	engine         *scene.Engine
	enabled        bool
	running        bool
	ticks          uint64
	sourceErrors   int
	lastSample     scene.Sample
	lastTransition *Transition
}

// New creates an App. The source and sink are owned by the App from here on
// and are closed when Run returns.
func New(config Config, src Source, sink Sink, opts ...Option) (*App, error) {
	if src == nil {
		return nil, errors.New("app: nil source")
	}
	if sink == nil {
		return nil, errors.New("app: nil sink")
	}
	if config.TickPeriod <= 0 {
		config.TickPeriod = DefaultTickPeriod
	}
	if config.SwitchTimeout <= 0 {
		config.SwitchTimeout = DefaultSwitchTimeout
	}
	if config.SourceErrorLimit < 0 {
		config.SourceErrorLimit = 0
	}

	engine, err := scene.NewEngine(config.Scenes, config.Thresholds)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  config,
		source:  src,
		sink:    sink,
		engine:  engine,
		enabled: true,
		logger:  log.WithComponent("app"),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store != nil {
		enabled, err := a.store.Settings().GetBool(store.SettingEnabled, true)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to load enabled setting")
		}
		a.enabled = enabled
	}
	metrics.SetEnabled(a.enabled)

	return a, nil
}

// SetEnabled pauses or resumes switching. A paused loop does not sample the
// source. Resuming drops any pending run.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	if changed && enabled {
		a.engine.DropPending()
	}
	a.mu.Unlock()

	if !changed {
		return
	}
	metrics.SetEnabled(enabled)
	a.logger.Info().Bool("enabled", enabled).Msg("switching toggled")

	if a.store != nil {
		if err := a.store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			a.logger.Warn().Err(err).Msg("failed to persist enabled setting")
		}
	}
}

// IsEnabled returns whether switching is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetThresholds replaces the boundaries and debounce. They take effect on the
// next tick; the active scene is kept and any pending run is dropped.
func (a *App) SetThresholds(th scene.Thresholds) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.SetThresholds(th); err != nil {
		return err
	}
	a.logger.Info().
		Float64("boundary_low", th.BoundaryLow).
		Float64("boundary_high", th.BoundaryHigh).
		Int("debounce_ticks", th.DebounceTicks).
		Dur("debounce", th.DebounceDuration(a.config.TickPeriod)).
		Msg("thresholds updated")
	return nil
}

// Run opens the source and ticks until ctx is cancelled or the source is
// lost. Cancellation is observed between ticks only. The source and sink are
// closed on every return path. A cancelled run returns nil.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.release()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if err := a.source.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	th := a.Thresholds()
	a.logger.Info().
		Str("high", string(a.config.Scenes.High)).
		Str("low", string(a.config.Scenes.Low)).
		Dur("tick", a.config.TickPeriod).
		Dur("debounce", th.DebounceDuration(a.config.TickPeriod)).
		Msg("tick loop started")

	ticker := time.NewTicker(a.config.TickPeriod)
	defer ticker.Stop()

	// A tick runs to completion even if ctx is cancelled part way through.
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("tick loop stopped")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if !a.IsEnabled() {
				continue
			}
			if err := a.tick(tickCtx); err != nil {
				return err
			}
		}
	}
}

func (a *App) release() {
	if err := a.source.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("error closing source")
	}
	if err := a.sink.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("error closing sink")
	}
}

// Running reports whether Run is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Thresholds returns the thresholds in effect.
func (a *App) Thresholds() scene.Thresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine.Thresholds()
}

// Scenes returns the configured scene pair.
func (a *App) Scenes() scene.Scenes {
	return a.config.Scenes
}

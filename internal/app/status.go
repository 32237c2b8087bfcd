package app

import (
	"github.com/ayusman/autocam/internal/scene"
)

// Status is a point-in-time snapshot of the loop.
type Status struct {
	Enabled        bool        `json:"enabled"`
	Running        bool        `json:"running"`
	Active         scene.ID    `json:"active"`
	Candidate      scene.ID    `json:"candidate,omitempty"`
	Pending        int         `json:"pending"`
	Remaining      int         `json:"remaining"`
	HighScene      scene.ID    `json:"high_scene"`
	LowScene       scene.ID    `json:"low_scene"`
	BoundaryLow    float64     `json:"boundary_low"`
	BoundaryHigh   float64     `json:"boundary_high"`
	DebounceTicks  int         `json:"debounce_ticks"`
	DebounceMillis int64       `json:"debounce_ms"`
	TickMillis     int64       `json:"tick_ms"`
	Ticks          uint64      `json:"ticks"`
	Position       *float64    `json:"position"`
	SourceErrors   int         `json:"source_errors"`
	LastTransition *Transition `json:"last_transition,omitempty"`
}

// Status returns the current snapshot. Position is nil when the last tick had
// no signal.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := a.engine.State()
	th := a.engine.Thresholds()

	s := Status{
		Enabled:        a.enabled,
		Running:        a.running,
		Active:         st.Active,
		Candidate:      st.Candidate,
		Pending:        st.Pending,
		HighScene:      a.config.Scenes.High,
		LowScene:       a.config.Scenes.Low,
		BoundaryLow:    th.BoundaryLow,
		BoundaryHigh:   th.BoundaryHigh,
		DebounceTicks:  th.DebounceTicks,
		DebounceMillis: th.DebounceDuration(a.config.TickPeriod).Milliseconds(),
		TickMillis:     a.config.TickPeriod.Milliseconds(),
		Ticks:          a.ticks,
		SourceErrors:   a.sourceErrors,
	}
	if st.Pending > 0 {
		s.Remaining = th.DebounceTicks - st.Pending
	}
	if a.lastSample.HasSignal() {
		x := a.lastSample.X
		s.Position = &x
	}
	if a.lastTransition != nil {
		tr := *a.lastTransition
		s.LastTransition = &tr
	}
	return s
}

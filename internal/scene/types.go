// Package scene implements the debounced hysteresis engine that turns a noisy
// horizontal face position into discrete scene selections.
//
// The package does no I/O. Step is a pure function of the previous State, one
// Sample and the configuration; Engine owns a State and applies Step once per tick.
package scene

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ID identifies a selectable scene. The zero value means "no scene".
type ID string

// None is the scene ID used before the first commit.
const None ID = ""

var (
	// ErrInvalidScenes is returned when the low/high scene pair is unusable.
	ErrInvalidScenes = errors.New("invalid scenes")
	// ErrInvalidThresholds is returned when boundaries or debounce are out of range.
	ErrInvalidThresholds = errors.New("invalid thresholds")
)

// Sample is one observation per tick: a normalized horizontal position or no signal.
type Sample struct {
	X     float64
	Valid bool
}

// Position returns a sample carrying the normalized coordinate x.
func Position(x float64) Sample {
	return Sample{X: x, Valid: true}
}

// NoSignal returns a sample for a tick without a usable reading.
func NoSignal() Sample {
	return Sample{}
}

// HasSignal reports whether the sample carries a usable position.
// NaN positions count as no signal.
func (s Sample) HasSignal() bool {
	return s.Valid && !math.IsNaN(s.X)
}

func (s Sample) String() string {
	if !s.HasSignal() {
		return "no-signal"
	}
	return fmt.Sprintf("%.3f", s.X)
}

// Scenes names the scene selected on each side of the dead zone.
type Scenes struct {
	// Low is selected for positions below BoundaryLow.
	Low ID
	// High is selected for positions at or above BoundaryHigh.
	High ID
}

// Validate checks that both scenes are set and distinct.
func (s Scenes) Validate() error {
	if s.Low == None || s.High == None {
		return fmt.Errorf("%w: low and high scenes are required", ErrInvalidScenes)
	}
	if s.Low == s.High {
		return fmt.Errorf("%w: low and high scenes must differ (both %q)", ErrInvalidScenes, s.Low)
	}
	return nil
}

// Thresholds configures the dead zone and the debounce counter.
type Thresholds struct {
	// BoundaryLow and BoundaryHigh bound the dead zone [BoundaryLow, BoundaryHigh).
	// Equal values give a single cut point with no dead zone.
	BoundaryLow  float64
	BoundaryHigh float64

	// DebounceTicks is the number of consecutive qualifying ticks that must be
	// seen before a switch commits on the following one. Zero switches immediately.
	DebounceTicks int
}

// Validate checks boundary ordering and range and the debounce count.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.BoundaryLow) || math.IsNaN(t.BoundaryHigh) {
		return fmt.Errorf("%w: boundaries must be numbers", ErrInvalidThresholds)
	}
	if t.BoundaryLow < 0 || t.BoundaryHigh > 1 {
		return fmt.Errorf("%w: boundaries must lie in [0, 1], got [%g, %g]", ErrInvalidThresholds, t.BoundaryLow, t.BoundaryHigh)
	}
	if t.BoundaryLow > t.BoundaryHigh {
		return fmt.Errorf("%w: boundary_low %g is above boundary_high %g", ErrInvalidThresholds, t.BoundaryLow, t.BoundaryHigh)
	}
	if t.DebounceTicks < 0 {
		return fmt.Errorf("%w: debounce_ticks must be >= 0, got %d", ErrInvalidThresholds, t.DebounceTicks)
	}
	return nil
}

// DebounceDuration converts the debounce count to wall time at the given tick period.
func (t Thresholds) DebounceDuration(tick time.Duration) time.Duration {
	return time.Duration(t.DebounceTicks) * tick
}

// Classify places x in a band. A tie with BoundaryHigh goes to the high band.
func (t Thresholds) Classify(x float64) Band {
	switch {
	case x >= t.BoundaryHigh:
		return BandHigh
	case x < t.BoundaryLow:
		return BandLow
	default:
		return BandDead
	}
}

// Band is the classification of one sample.
type Band int

const (
	BandNone Band = iota // no signal this tick
	BandLow
	BandDead
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandDead:
		return "dead"
	case BandHigh:
		return "high"
	default:
		return "none"
	}
}

// State is the mutable decision state owned by an Engine.
type State struct {
	// Active is the last committed scene, None before the first commit.
	Active ID
	// Candidate is the scene the current pending run favors. None when Pending is 0.
	Candidate ID
	// Pending counts consecutive ticks favoring Candidate.
	Pending int
}

// Command asks the sink to make a scene the program scene.
type Command struct {
	SwitchTo ID
}

// Decision describes what one tick did. Only Command affects the outside world;
// the other fields exist for logging and status reporting.
type Decision struct {
	Band      Band
	Candidate ID
	// Pending is the run length toward Candidate after this tick. On a commit it
	// holds the run length that triggered it.
	Pending int
	// Remaining is the number of further qualifying ticks that still would not
	// commit. Zero means the next qualifying tick commits.
	Remaining int
	// Abandoned is set when this tick dropped a pending run.
	Abandoned bool
	Command   *Command
}

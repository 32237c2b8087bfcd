package scene

// Step applies one sample to st and returns the next state and what happened.
//
//  1. No signal: nothing changes.
//  2. Classify the position; the dead zone favors the active scene.
//  3. Favoring the active scene drops any pending run.
//  4. Otherwise extend the run toward the candidate (restarting it if the
//     candidate changed) and commit once the run exceeds DebounceTicks.
func Step(st State, sample Sample, scenes Scenes, th Thresholds) (State, Decision) {
	if !sample.HasSignal() {
		return st, Decision{
			Band:      BandNone,
			Candidate: st.Candidate,
			Pending:   st.Pending,
			Remaining: remaining(th, st.Pending),
		}
	}

	d := Decision{Band: th.Classify(sample.X)}

	candidate := st.Active
	switch d.Band {
	case BandLow:
		candidate = scenes.Low
	case BandHigh:
		candidate = scenes.High
	}
	d.Candidate = candidate

	if candidate == st.Active {
		d.Abandoned = st.Pending > 0
		return State{Active: st.Active}, d
	}

	next := st
	if next.Candidate != candidate {
		d.Abandoned = next.Pending > 0
		next.Candidate = candidate
		next.Pending = 0
	}
	next.Pending++
	d.Pending = next.Pending

	if next.Pending > th.DebounceTicks {
		d.Command = &Command{SwitchTo: candidate}
		return State{Active: candidate}, d
	}

	d.Remaining = th.DebounceTicks - next.Pending
	return next, d
}

func remaining(th Thresholds, pending int) int {
	if pending == 0 {
		return 0
	}
	return th.DebounceTicks - pending
}

// Engine holds decision state for one tick loop. It is not safe for concurrent use.
type Engine struct {
	scenes     Scenes
	thresholds Thresholds
	state      State
}

// NewEngine creates an engine with no active scene.
func NewEngine(scenes Scenes, th Thresholds) (*Engine, error) {
	if err := scenes.Validate(); err != nil {
		return nil, err
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Engine{scenes: scenes, thresholds: th}, nil
}

// Decide feeds one sample to the engine. Call it exactly once per tick.
func (e *Engine) Decide(sample Sample) Decision {
	var d Decision
	e.state, d = Step(e.state, sample, e.scenes, e.thresholds)
	return d
}

// State returns a copy of the current decision state.
func (e *Engine) State() State {
	return e.state
}

// Scenes returns the configured scene pair.
func (e *Engine) Scenes() Scenes {
	return e.scenes
}

// Thresholds returns the thresholds in effect.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// SetThresholds replaces the thresholds. The active scene is kept and any
// pending run is dropped, since its progress was counted against the old values.
func (e *Engine) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	e.thresholds = th
	e.DropPending()
	return nil
}

// DropPending discards any pending run and keeps the active scene.
func (e *Engine) DropPending() {
	e.state = State{Active: e.state.Active}
}

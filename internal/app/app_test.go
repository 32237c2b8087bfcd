package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ayusman/autocam/internal/scene"
	"github.com/ayusman/autocam/internal/source"
	"github.com/ayusman/autocam/internal/store"
)

var testConfig = Config{
	Scenes:     scene.Scenes{Low: "CAM2", High: "CAM1"},
	Thresholds: scene.Thresholds{BoundaryLow: 0.395, BoundaryHigh: 0.435, DebounceTicks: 2},
	TickPeriod: time.Millisecond,
}

type step struct {
	sample scene.Sample
	err    error
}

func at(xs ...float64) []step {
	steps := make([]step, len(xs))
	for i, x := range xs {
		steps[i] = step{sample: scene.Position(x)}
	}
	return steps
}

// fakeSource replays steps, then reports no signal and closes drained.
type fakeSource struct {
	mu      sync.Mutex
	steps   []step
	openErr error
	calls   int
	closed  int

	drained   chan struct{}
	drainOnce sync.Once
}

func newFakeSource(steps ...step) *fakeSource {
	return &fakeSource{steps: steps, drained: make(chan struct{})}
}

func (s *fakeSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}

func (s *fakeSource) Next(ctx context.Context) (scene.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.steps) == 0 {
		s.drainOnce.Do(func() { close(s.drained) })
		return scene.NoSignal(), nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.sample, next.err
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) push(steps ...step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
	s.drained = make(chan struct{})
	s.drainOnce = sync.Once{}
}

func (s *fakeSource) waitDrained(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	ch := s.drained
	s.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("source was not drained")
	}
}

func (s *fakeSource) stats() (calls, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.closed
}

type fakeSink struct {
	mu       sync.Mutex
	switches []scene.ID
	fail     []error
	closed   int
}

func (s *fakeSink) SwitchTo(ctx context.Context, id scene.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.switches = append(s.switches, id)
	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		return err
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) calls() []scene.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scene.ID(nil), s.switches...)
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// start runs a in the background and returns a function that cancels it and
// returns Run's result.
func start(t *testing.T, a *App) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestNew_Validation(t *testing.T) {
	src, sink := newFakeSource(), &fakeSink{}

	_, err := New(testConfig, nil, sink)
	assert.Error(t, err)

	_, err = New(testConfig, src, nil)
	assert.Error(t, err)

	bad := testConfig
	bad.Scenes = scene.Scenes{Low: "SAME", High: "SAME"}
	_, err = New(bad, src, sink)
	assert.ErrorIs(t, err, scene.ErrInvalidScenes)

	bad = testConfig
	bad.Thresholds.BoundaryLow = 0.9
	_, err = New(bad, src, sink)
	assert.ErrorIs(t, err, scene.ErrInvalidThresholds)

	a, err := New(Config{Scenes: testConfig.Scenes, Thresholds: testConfig.Thresholds}, src, sink)
	require.NoError(t, err)
	assert.Equal(t, DefaultTickPeriod, a.config.TickPeriod)
	assert.Equal(t, DefaultSwitchTimeout, a.config.SwitchTimeout)
	assert.True(t, a.IsEnabled())
}

func TestApp_SwitchesAfterDebounce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Jitter around the high boundary, then a steady run.
	src := newFakeSource(at(0.44, 0.43, 0.44, 0.44, 0.44, 0.44)...)
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Equal(t, []scene.ID{"CAM1"}, sink.calls())

	st := a.Status()
	assert.Equal(t, scene.ID("CAM1"), st.Active)
	assert.Zero(t, st.Pending)
	assert.False(t, st.Running)
	require.NotNil(t, st.LastTransition)
	assert.True(t, st.LastTransition.Applied)
	assert.Equal(t, scene.None, st.LastTransition.From)
	assert.Equal(t, 0.44, st.LastTransition.Position)

	_, closed := src.stats()
	assert.Equal(t, 1, closed, "source should be released once")
	assert.Equal(t, 1, sink.closeCount(), "sink should be released once")
}

func TestApp_DeadZoneNeverSwitches(t *testing.T) {
	src := newFakeSource(at(0.40, 0.41, 0.42, 0.43, 0.40, 0.42, 0.41)...)
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Empty(t, sink.calls())
	assert.Equal(t, scene.None, a.Status().Active)
}

func TestApp_SinkFailureIsNotRolledBack(t *testing.T) {
	src := newFakeSource(at(0.9, 0.9, 0.9, 0.9, 0.9, 0.9)...)
	sink := &fakeSink{fail: []error{errors.New("obs: not connected")}}

	var seen []Transition
	a, err := New(testConfig, src, sink, WithObserver(func(tr Transition) {
		seen = append(seen, tr)
	}))
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)

	// The failed switch is not resent while the face stays put.
	assert.Equal(t, []scene.ID{"CAM1"}, sink.calls())
	assert.Equal(t, scene.ID("CAM1"), a.Status().Active)

	// The next differing decision goes through.
	src.push(at(0.1, 0.1, 0.1)...)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Equal(t, []scene.ID{"CAM1", "CAM2"}, sink.calls())
	require.Len(t, seen, 2)
	assert.False(t, seen[0].Applied)
	assert.Equal(t, "obs: not connected", seen[0].Error)
	assert.True(t, seen[1].Applied)
	assert.Equal(t, scene.ID("CAM1"), seen[1].From)
	assert.Less(t, seen[0].Tick, seen[1].Tick)
}

func TestApp_SourceUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := newFakeSource()
	src.openErr = errors.New("camera 1: device busy")
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "device busy")

	calls, closed := src.stats()
	assert.Zero(t, calls, "loop must not be entered")
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, sink.closeCount())
}

func TestApp_SourceErrorIsNoSignal(t *testing.T) {
	readErr := &source.Error{Op: "read", Err: errors.New("frame dropped")}
	steps := []step{
		{sample: scene.Position(0.9)},
		{err: readErr},
		{sample: scene.Position(0.9)},
		{err: readErr},
		{sample: scene.Position(0.9)},
	}
	src := newFakeSource(steps...)
	sink := &fakeSink{}

	cfg := testConfig
	cfg.SourceErrorLimit = 2
	a, err := New(cfg, src, sink)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	require.NoError(t, stop())

	// Errors neither reset nor advance the run, and never reach the limit
	// because a good sample sits between them.
	assert.Equal(t, []scene.ID{"CAM1"}, sink.calls())
	assert.Zero(t, a.Status().SourceErrors)
}

func TestApp_SourceLost(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := &source.Error{Op: "detect", Err: errors.New("helper exited")}
	src := newFakeSource(step{err: boom}, step{err: boom}, step{err: boom})
	sink := &fakeSink{}

	cfg := testConfig
	cfg.SourceErrorLimit = 3
	a, err := New(cfg, src, sink)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSourceLost)
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not give up on the source")
	}

	_, closed := src.stats()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, sink.closeCount())
}

func TestApp_Disabled(t *testing.T) {
	src := newFakeSource(at(0.9, 0.9, 0.9)...)
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)
	a.SetEnabled(false)

	stop := start(t, a)
	time.Sleep(20 * time.Millisecond)

	calls, _ := src.stats()
	assert.Zero(t, calls, "a paused loop must not sample")

	a.SetEnabled(true)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Equal(t, []scene.ID{"CAM1"}, sink.calls())
}

func TestApp_ResumeDropsPendingRun(t *testing.T) {
	src := newFakeSource(at(0.9, 0.9)...)
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	assert.Equal(t, 2, a.Status().Pending)

	a.SetEnabled(false)
	a.SetEnabled(true)
	assert.Zero(t, a.Status().Pending)

	src.push(at(0.9)...)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Empty(t, sink.calls(), "progress from before the pause must not count")
}

func TestApp_SetThresholds(t *testing.T) {
	src := newFakeSource(at(0.5, 0.5, 0.5)...)
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	err = a.SetThresholds(scene.Thresholds{BoundaryLow: 0.6, BoundaryHigh: 0.4})
	assert.ErrorIs(t, err, scene.ErrInvalidThresholds)
	assert.Equal(t, testConfig.Thresholds, a.Thresholds())

	// 0.5 sits in the dead zone of the old thresholds but above the new high boundary.
	require.NoError(t, a.SetThresholds(scene.Thresholds{BoundaryLow: 0.2, BoundaryHigh: 0.3, DebounceTicks: 0}))

	stop := start(t, a)
	src.waitDrained(t)
	require.NoError(t, stop())

	assert.Equal(t, []scene.ID{"CAM1"}, sink.calls())
	assert.Equal(t, int64(0), a.Status().DebounceMillis)
}

func TestApp_AlreadyRunning(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}

	a, err := New(testConfig, src, sink)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	assert.True(t, a.Running())

	assert.ErrorIs(t, a.Run(context.Background()), ErrAlreadyRunning)
	require.NoError(t, stop())
}

func TestApp_Status(t *testing.T) {
	src := newFakeSource(at(0.1)...)
	sink := &fakeSink{}

	cfg := testConfig
	cfg.TickPeriod = 100 * time.Millisecond
	a, err := New(cfg, src, sink)
	require.NoError(t, err)

	st := a.Status()
	assert.Nil(t, st.Position)
	assert.Equal(t, int64(200), st.DebounceMillis)
	assert.Equal(t, int64(100), st.TickMillis)
	assert.Equal(t, scene.ID("CAM1"), st.HighScene)
	assert.Equal(t, scene.ID("CAM2"), st.LowScene)

	// Drive one tick directly.
	require.NoError(t, a.tick(context.Background()))

	st = a.Status()
	require.NotNil(t, st.Position)
	assert.Equal(t, 0.1, *st.Position)
	assert.Equal(t, scene.ID("CAM2"), st.Candidate)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.Remaining)
	assert.Equal(t, uint64(1), st.Ticks)
}

func TestApp_StoreJournalAndEnabled(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "autocam.db"))
	require.NoError(t, err)
	defer st.Close()

	src := newFakeSource(at(0.9, 0.9, 0.9)...)
	sink := &fakeSink{}

	var observed []Transition
	a, err := New(testConfig, src, sink,
		WithStore(st),
		WithObserver(func(tr Transition) { observed = append(observed, tr) }),
	)
	require.NoError(t, err)

	stop := start(t, a)
	src.waitDrained(t)
	require.NoError(t, stop())

	require.Len(t, observed, 1)
	journaled, err := st.Transitions().List(0)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, observed[0].ID.String(), journaled[0].ID)
	assert.Equal(t, "CAM1", journaled[0].To)
	assert.True(t, journaled[0].Applied)

	a.SetEnabled(false)

	// A new App over the same store starts paused.
	b, err := New(testConfig, newFakeSource(), &fakeSink{}, WithStore(st))
	require.NoError(t, err)
	assert.False(t, b.IsEnabled())
}

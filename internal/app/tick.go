package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/autocam/internal/metrics"
	"github.com/ayusman/autocam/internal/scene"
	"github.com/ayusman/autocam/internal/source"
	"github.com/ayusman/autocam/internal/store"
)

// tick runs one sample → decide → dispatch cycle. It only returns an error
// when the source is lost.
func (a *App) tick(ctx context.Context) error {
	sample, err := a.source.Next(ctx)
	if err != nil {
		if lost := a.sourceFailed(err); lost != nil {
			return lost
		}
		sample = scene.NoSignal()
	} else {
		a.sourceRecovered(sample)
	}

	a.mu.Lock()
	a.ticks++
	tick := a.ticks
	from := a.engine.State().Active
	d := a.engine.Decide(sample)
	a.lastSample = sample
	a.mu.Unlock()

	metrics.SetPending(d.Pending)
	a.logDecision(sample, d)

	if d.Command == nil {
		return nil
	}
	a.dispatch(ctx, tick, from, sample, *d.Command)
	return nil
}

func (a *App) sourceFailed(err error) error {
	a.mu.Lock()
	a.sourceErrors++
	n := a.sourceErrors
	a.mu.Unlock()

	op := "unknown"
	var srcErr *source.Error
	if errors.As(err, &srcErr) {
		op = srcErr.Op
	}
	metrics.RecordSample(metrics.SampleSourceError, 0)
	metrics.RecordSourceError(op)

	a.logger.Warn().Err(err).Str("op", op).Int("consecutive", n).Msg("source error, treating tick as no signal")

	if limit := a.config.SourceErrorLimit; limit > 0 && n >= limit {
		a.logger.Error().Int("limit", limit).Msg("giving up on signal source")
		return fmt.Errorf("%w after %d consecutive errors: %w", ErrSourceLost, n, err)
	}
	return nil
}

func (a *App) sourceRecovered(sample scene.Sample) {
	a.mu.Lock()
	if a.sourceErrors > 0 {
		a.logger.Info().Int("errors", a.sourceErrors).Msg("signal source recovered")
	}
	a.sourceErrors = 0
	a.mu.Unlock()

	if sample.HasSignal() {
		metrics.RecordSample(metrics.SamplePosition, sample.X)
	} else {
		metrics.RecordSample(metrics.SampleNoSignal, 0)
	}
}

func (a *App) logDecision(sample scene.Sample, d scene.Decision) {
	if !sample.HasSignal() {
		a.logger.Debug().Msg("no face detected")
		return
	}

	a.logger.Debug().Float64("x", sample.X).Str("band", d.Band.String()).Msg("nose position")

	if d.Abandoned {
		metrics.RecordAbandoned()
		a.logger.Info().Msg("pending switch abandoned")
	}
	if d.Command == nil && d.Pending > 0 {
		a.logger.Info().
			Str("candidate", string(d.Candidate)).
			Int("remaining", d.Remaining).
			Msg("switch pending")
	}
}

// dispatch applies a committed command. A sink failure is logged and
// recorded; the engine keeps the new active scene and nothing is resent.
func (a *App) dispatch(ctx context.Context, tick uint64, from scene.ID, sample scene.Sample, cmd scene.Command) {
	sctx, cancel := context.WithTimeout(ctx, a.config.SwitchTimeout)
	defer cancel()

	started := time.Now()
	err := a.sink.SwitchTo(sctx, cmd.SwitchTo)

	tr := Transition{
		ID:       uuid.New(),
		From:     from,
		To:       cmd.SwitchTo,
		Position: sample.X,
		Tick:     tick,
		Applied:  err == nil,
		At:       time.Now(),
	}

	if err != nil {
		tr.Error = err.Error()
		a.logger.Error().Err(err).
			Str("from", string(from)).
			Str("to", string(cmd.SwitchTo)).
			Msg("scene switch failed")
	} else {
		a.logger.Info().
			Str("from", string(from)).
			Str("to", string(cmd.SwitchTo)).
			Float64("x", sample.X).
			Dur("took", time.Since(started)).
			Msg("switched scene")
	}
	metrics.RecordSwitch(string(cmd.SwitchTo), tr.Applied)

	a.mu.Lock()
	a.lastTransition = &tr
	a.mu.Unlock()

	a.journal(tr)
	for _, fn := range a.observers {
		fn(tr)
	}
}

func (a *App) journal(tr Transition) {
	if a.store == nil {
		return
	}
	err := a.store.Transitions().Create(&store.Transition{
		ID:        tr.ID.String(),
		From:      string(tr.From),
		To:        string(tr.To),
		Position:  tr.Position,
		Tick:      tr.Tick,
		Applied:   tr.Applied,
		Error:     tr.Error,
		CreatedAt: tr.At,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("transition", tr.ID.String()).Msg("failed to journal transition")
	}
}

package hook

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/app"
	"github.com/ayusman/autocam/internal/log"
	"github.com/ayusman/autocam/internal/metrics"
)

// queueSize is how many transitions may wait for hooks before new ones are dropped.
const queueSize = 32

// Runner feeds applied transitions to the matching hooks, one at a time and
// off the switching loop.
type Runner struct {
	manager  *Manager
	executor *Executor
	queue    chan app.Transition
	logger   zerolog.Logger
}

// NewRunner creates a Runner over the hooks known to manager.
func NewRunner(manager *Manager, executor *Executor) *Runner {
	return &Runner{
		manager:  manager,
		executor: executor,
		queue:    make(chan app.Transition, queueSize),
		logger:   log.WithComponent("hook"),
	}
}

// Notify queues a transition. Failed switches are ignored; OBS never showed
// them. It never blocks.
func (r *Runner) Notify(tr app.Transition) {
	if !tr.Applied {
		return
	}
	select {
	case r.queue <- tr:
	default:
		r.logger.Warn().Str("to", string(tr.To)).Msg("hook queue full, dropping transition")
	}
}

// Run executes queued transitions until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-r.queue:
			r.dispatch(ctx, tr)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, tr app.Transition) {
	ev := Event{
		ID:       tr.ID.String(),
		From:     string(tr.From),
		To:       string(tr.To),
		Position: tr.Position,
		At:       tr.At,
	}

	for _, h := range r.manager.List() {
		if !h.Matches(ev.To) {
			continue
		}

		resp, err := r.executor.Execute(ctx, h, ev)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("hook", h.Manifest.Name).Msg("hook failed")
		case !resp.Success:
			r.logger.Warn().Str("hook", h.Manifest.Name).Str("error", resp.Error).Msg("hook reported failure")
		default:
			r.logger.Debug().Str("hook", h.Manifest.Name).Str("to", ev.To).Msg("hook ran")
		}
		metrics.RecordHook(h.Manifest.Name, err == nil && resp.Success)
	}
}

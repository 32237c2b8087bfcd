// Package metrics exposes prometheus instrumentation for the switching loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sample kinds.
const (
	SamplePosition    = "position"
	SampleNoSignal    = "no_signal"
	SampleSourceError = "source_error"
)

var (
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocam_samples_total",
		Help: "Total number of ticks by sample kind",
	}, []string{"kind"})

	switchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocam_scene_switches_total",
		Help: "Total number of committed scene switches by target scene and outcome",
	}, []string{"scene", "result"})

	abandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autocam_pending_abandoned_total",
		Help: "Total number of pending switches dropped before commit",
	})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocam_source_errors_total",
		Help: "Total number of failed sample reads by operation",
	}, []string{"op"})

	pendingTicks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocam_pending_ticks",
		Help: "Consecutive ticks favoring the pending candidate scene",
	})

	lastPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocam_position",
		Help: "Most recent normalized nose position (0 = left edge, 1 = right edge)",
	})

	hookRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocam_hook_runs_total",
		Help: "Total number of transition hook runs by hook and outcome",
	}, []string{"hook", "result"})

	enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocam_enabled",
		Help: "Whether automatic switching is enabled (1) or paused (0)",
	})
)

// RecordSample counts one tick's sample. x is only used for position samples.
func RecordSample(kind string, x float64) {
	switch kind {
	case SamplePosition:
		lastPosition.Set(x)
	case SampleNoSignal, SampleSourceError:
	default:
		kind = "unknown"
	}
	samplesTotal.WithLabelValues(kind).Inc()
}

// RecordSwitch counts a committed switch and whether the sink applied it.
func RecordSwitch(scene string, applied bool) {
	if scene == "" {
		scene = "unknown"
	}
	result := "applied"
	if !applied {
		result = "failed"
	}
	switchesTotal.WithLabelValues(scene, result).Inc()
}

// RecordAbandoned counts a pending run that ended without a commit.
func RecordAbandoned() {
	abandonedTotal.Inc()
}

// RecordSourceError counts a failed read or detect.
func RecordSourceError(op string) {
	switch op {
	case "read", "detect":
	default:
		op = "unknown"
	}
	sourceErrorsTotal.WithLabelValues(op).Inc()
}

// SetPending reports the current pending run length.
func SetPending(n int) {
	pendingTicks.Set(float64(n))
}

// SetEnabled reports the switching toggle.
func SetEnabled(on bool) {
	if on {
		enabled.Set(1)
		return
	}
	enabled.Set(0)
}

// RecordHook counts one hook run.
func RecordHook(name string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	hookRunsTotal.WithLabelValues(name, result).Inc()
}

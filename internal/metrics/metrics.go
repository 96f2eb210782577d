// Package metrics exposes session counters and step latency through a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

// Recorder implements session.Recorder on Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	failures     prometheus.Counter
	stepDuration prometheus.Histogram
	choices      *prometheus.CounterVec
	modeToggles  *prometheus.CounterVec
}

// New registers the reflex collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_steps_total",
				Help: "Engine steps by result.",
			},
			[]string{"result"},
		),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reflex_step_failures_total",
			Help: "Engine steps that returned an error.",
		}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reflex_step_duration_seconds",
			Help:    "Wall time of a single engine step.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		choices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_choices_total",
				Help: "Choices submitted by blackboard key.",
			},
			[]string{"key"},
		),
		modeToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reflex_mode_toggles_total",
				Help: "Mode switches by the mode entered.",
			},
			[]string{"mode"},
		),
	}
	r.registry.MustRegister(r.steps, r.failures, r.stepDuration, r.choices, r.modeToggles)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) StepFinished(status engine.StepStatus, elapsed time.Duration) {
	r.steps.WithLabelValues(string(status)).Inc()
	r.stepDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) StepFailed(elapsed time.Duration) {
	r.steps.WithLabelValues("error").Inc()
	r.failures.Inc()
	r.stepDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ChoiceSubmitted(key string) {
	r.choices.WithLabelValues(key).Inc()
}

func (r *Recorder) ModeChanged(mode display.Mode) {
	r.modeToggles.WithLabelValues(string(mode)).Inc()
}

// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
)

var _ engine.Recorder = (*Recorder)(nil)

// Recorder implements engine.Recorder on top of Prometheus collectors.
// Scope ids are not used as labels; repeating rows would make them unbounded.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	triggers     *prometheus.CounterVec
	coalesced    prometheus.Counter
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	writes       prometheus.Counter
	invalidDates prometheus.Counter
}

// New constructs a Recorder. Without WithRegistry the collectors live on a
// private registry reachable through Registry and Handler.
func New(options ...Option) *Recorder {
	r := &Recorder{
		namespace: "formcalc",
		subsystem: "engine",
		buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	r.initialize()
	return r
}

func (r *Recorder) initialize() {
	auto := promauto.With(r.registry)

	r.triggers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "triggers_total",
		Help:      "Recompute triggers received, by kind (value or structural).",
	}, []string{"kind"})

	r.coalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "triggers_coalesced_total",
		Help:      "Triggers folded into an already pending pass.",
	})

	r.passes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "passes_total",
		Help:      "Recomputation passes, by whether the scope was armed.",
	}, []string{"armed"})

	r.passDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "pass_duration_seconds",
		Help:      "Duration of recomputation passes.",
		Buckets:   r.buckets,
	})

	r.writes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "aggregate_writes_total",
		Help:      "Aggregate values written back to the form.",
	})

	r.invalidDates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "date_validation_failures_total",
		Help:      "Date values rejected for exceeding their bound.",
	})
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TriggerReceived implements engine.Recorder.
func (r *Recorder) TriggerReceived(_ field.ScopeID, structural bool) {
	kind := "value"
	if structural {
		kind = "structural"
	}
	r.triggers.WithLabelValues(kind).Inc()
}

// TriggerCoalesced implements engine.Recorder.
func (r *Recorder) TriggerCoalesced(field.ScopeID) {
	r.coalesced.Inc()
}

// PassCompleted implements engine.Recorder.
func (r *Recorder) PassCompleted(_ field.ScopeID, armed, wrote bool, elapsed time.Duration) {
	label := "false"
	if armed {
		label = "true"
	}
	r.passes.WithLabelValues(label).Inc()
	r.passDuration.Observe(elapsed.Seconds())
	if wrote {
		r.writes.Inc()
	}
}

// ValidationFailed implements engine.Recorder.
func (r *Recorder) ValidationFailed(field.ScopeID) {
	r.invalidDates.Inc()
}

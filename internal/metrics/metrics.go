// Package metrics records translation counters on a private Prometheus
// registry. A CLI run has no scrape endpoint, so the registry is written out
// in the node-exporter textfile format instead.
//
// All Recorder methods are safe on a nil receiver, which records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sifter"

// Outcomes of a file translation.
const (
	OutcomeParsed  = "parsed"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Recorder holds the translation metrics.
type Recorder struct {
	registry   *prometheus.Registry
	files      *prometheus.CounterVec
	unresolved *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	runs       prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Source files seen by translation, by language and outcome.",
		}, []string{"language", "outcome"}),
		unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_references_total",
			Help:      "References left unresolved after scope resolution.",
		}, []string{"language"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time to translate one source file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"language"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Translation runs.",
		}),
	}
	r.registry.MustRegister(r.files, r.unresolved, r.duration, r.runs)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// File records one file's outcome.
func (r *Recorder) File(language, outcome string) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(language, outcome).Inc()
}

// Unresolved adds n unresolved references.
func (r *Recorder) Unresolved(language string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.unresolved.WithLabelValues(language).Add(float64(n))
}

// ObserveParse records how long a translation took.
func (r *Recorder) ObserveParse(language string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(language).Observe(d.Seconds())
}

// Run counts a finished translation run.
func (r *Recorder) Run() {
	if r == nil {
		return
	}
	r.runs.Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

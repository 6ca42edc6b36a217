package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pow"

// Recorder collects solve and validation statistics per driver.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	solves      *prometheus.CounterVec
	validations *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	fill        *prometheus.HistogramVec
	search      *prometheus.HistogramVec
	tableBytes  *prometheus.GaugeVec
}

// NewRecorder registers the collectors on a private registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Solve calls by driver and outcome",
		}, []string{"driver", "outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validate calls by driver and result",
		}, []string{"driver", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_attempts_total",
			Help:      "Candidates probed while searching",
		}, []string{"driver"}),
		fill: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_fill_seconds",
			Help:      "Time spent building lookup tables",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"driver"}),
		search: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_seconds",
			Help:      "Time spent probing candidates",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"driver"}),
		tableBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_bytes",
			Help:      "Size of the table currently held",
		}, []string{"driver"}),
	}
	r.registry.MustRegister(r.solves, r.validations, r.attempts, r.fill, r.search, r.tableBytes)
	return r
}

// Registry exposes the collectors for an HTTP handler or a test gatherer
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveSolve records a finished solve
func (r *Recorder) ObserveSolve(driver string, err error, attempts uint64, fill, search time.Duration) {
	if r == nil {
		return
	}
	outcome := "solved"
	if err != nil {
		outcome = "failed"
	}
	r.solves.WithLabelValues(driver, outcome).Inc()
	r.attempts.WithLabelValues(driver).Add(float64(attempts))
	r.fill.WithLabelValues(driver).Observe(fill.Seconds())
	r.search.WithLabelValues(driver).Observe(search.Seconds())
}

// ObserveValidation records a finished full validation
func (r *Recorder) ObserveValidation(driver string, valid bool, fill time.Duration) {
	if r == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	r.validations.WithLabelValues(driver, result).Inc()
	r.fill.WithLabelValues(driver).Observe(fill.Seconds())
}

// SetTableBytes records the table size held by driver
func (r *Recorder) SetTableBytes(driver string, size uint64) {
	if r == nil {
		return
	}
	r.tableBytes.WithLabelValues(driver).Set(float64(size))
}

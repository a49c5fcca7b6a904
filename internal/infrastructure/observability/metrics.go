package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Submission metrics
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// Drain metrics
	DrainsTotal   *prometheus.CounterVec
	DrainDuration prometheus.Histogram

	// Queue metrics
	QueueDepth     prometheus.Gauge
	EnqueuedTotal  prometheus.Counter
	CleanedUpTotal prometheus.Counter
	RecoveredTotal prometheus.Counter
	Online         prometheus.Gauge
	StoreDegraded  prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Remote submissions by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		SubmissionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_duration_seconds",
				Help:      "Remote submission duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"result"},
		),
		DrainsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drains_total",
				Help:      "Queue drain attempts by outcome",
			},
			[]string{"outcome"},
		),
		DrainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "drain_duration_seconds",
				Help:      "Duration of completed queue drains in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Transactions not yet synced",
			},
		),
		EnqueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enqueued_total",
				Help:      "Transactions accepted into the queue",
			},
		),
		CleanedUpTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleaned_up_total",
				Help:      "Synced transactions removed by cleanup",
			},
		),
		RecoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovered_total",
				Help:      "Interrupted submissions moved back to pending at startup",
			},
		),
		Online: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "online",
				Help:      "1 when the terminal has connectivity",
			},
		),
		StoreDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_degraded",
				Help:      "1 when the queue runs on the non-persistent fallback store",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.SubmissionDuration,
		m.DrainsTotal,
		m.DrainDuration,
		m.QueueDepth,
		m.EnqueuedTotal,
		m.CleanedUpTotal,
		m.RecoveredTotal,
		m.Online,
		m.StoreDegraded,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
	)

	return m
}

// SetOnline is nil-safe so callers without metrics can skip checks.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	m.Online.Set(boolGauge(online))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	m.StoreDegraded.Set(boolGauge(degraded))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

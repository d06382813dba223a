package metrics

import (
	"net/http"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "haggle"

// Metrics groups the negotiation engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	expired       prometheus.Counter
	lockWait      prometheus.Histogram
	deliveries    *prometheus.CounterVec
	dropped       prometheus.Counter
	sweepDuration prometheus.Histogram
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_transitions_total",
			Help:      "Offer commands by action and result code.",
		}, []string{"action", "result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_expired_total",
			Help:      "Offers moved to expired by the sweep.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "offer_lock_wait_seconds",
			Help:      "Time spent waiting for the per-offer lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_deliveries_total",
			Help:      "Notification deliveries by sink and result.",
		}, []string{"sink", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Outcomes dropped because the dispatch queue was full.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Duration of one expiry sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.transitions, m.expired, m.lockWait, m.deliveries, m.dropped, m.sweepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTransition counts one command. The result label is the API error
// code of err, or "ok".
func (m *Metrics) ObserveTransition(action string, err error) {
	result := "ok"
	if err != nil {
		result = apperrors.FromError(err).Code
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveExpired(n int) {
	m.expired.Add(float64(n))
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveDelivery(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) ObserveDropped() {
	m.dropped.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "go_cart"

// Metrics holds every collector of the service on its own registry.
// It implements checkout.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	authorize *prometheus.CounterVec
	finalize  *prometheus.CounterVec
	compensat *prometheus.CounterVec
	reconcile *prometheus.CounterVec
	clamps    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authorize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "authorizations_total",
			Help:      "Checkout authorizations by result.",
		}, []string{"result"}),
		finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "finalizations_total",
			Help:      "Checkout finalizations by result.",
		}, []string{"result"}),
		compensat: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "compensations_total",
			Help:      "Compensating actions (void, release) taken.",
		}, []string{"action"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "reconcile_actions_total",
			Help:      "Repairs made by the reconciliation sweep.",
		}, []string{"action"}),
		clamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "discount_clamped_total",
			Help:      "Cart totals clamped at zero by a discount.",
		}),
	}
	m.registry.MustRegister(
		m.Requests, m.Latency,
		m.authorize, m.finalize, m.compensat, m.reconcile, m.clamps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Authorization(result string) {
	m.authorize.WithLabelValues(result).Inc()
}

func (m *Metrics) Finalization(result string) {
	m.finalize.WithLabelValues(result).Inc()
}

func (m *Metrics) Compensation(action string) {
	m.compensat.WithLabelValues(action).Inc()
}

func (m *Metrics) Reconciled(action string, n int) {
	if n <= 0 {
		return
	}
	m.reconcile.WithLabelValues(action).Add(float64(n))
}

// Clamped is wired as the cart clamp hook.
func (m *Metrics) Clamped() {
	m.clamps.Inc()
}

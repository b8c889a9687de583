package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/telemetry"
)

var routeLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.8, 1, 2, 5, 10}

// routeMetrics covers every routed request, including the alarm and telemetry routes that
// never reach the item service.
type routeMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	ingested *prometheus.CounterVec
}

func newRouteMetrics(reg prometheus.Registerer) *routeMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"method", "route", "status"}
	return &routeMetrics{
		requests: telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemsvc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Routed HTTP requests by route and status",
		}, labels)),
		duration: telemetry.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "itemsvc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent in route handlers",
			Buckets:   routeLatencyBuckets,
		}, labels)),
		ingested: telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemsvc",
			Subsystem: "http",
			Name:      "ingested_samples_total",
			Help:      "Remote metric samples received on the telemetry route",
		}, []string{"outcome"})),
	}
}

func (m *routeMetrics) observe(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

func (m *routeMetrics) samples(outcome string, n int) {
	if n > 0 {
		m.ingested.WithLabelValues(outcome).Add(float64(n))
	}
}

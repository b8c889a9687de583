// Package telemetry records per-request metric samples and hands them to consumers such as
// the alarm evaluator.
package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.8, 1, 2, 5}

// Sink consumes samples. Implementations must not block.
type Sink interface {
	Record(sample domain.MetricSample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(domain.MetricSample)

func (f SinkFunc) Record(sample domain.MetricSample) { f(sample) }

// Recorder exports samples as Prometheus metrics and forwards them to every sink.
type Recorder struct {
	sinks    []Sink
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewRecorder registers the sample collectors on reg when it is non-nil.
func NewRecorder(reg prometheus.Registerer, sinks ...Sink) *Recorder {
	r := &Recorder{sinks: sinks}
	if reg == nil {
		return r
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "itemsvc",
		Subsystem: "items",
		Name:      "requests_total",
		Help:      "Item requests by endpoint and status class",
	}, []string{"endpoint", "status_class", "error_kind"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "itemsvc",
		Subsystem: "items",
		Name:      "request_duration_seconds",
		Help:      "Item request latency including injected delay",
		Buckets:   latencyBuckets,
	}, []string{"endpoint", "status_class"})
	r.requests = Register(reg, requests)
	r.latency = Register(reg, latency)
	return r
}

// Register adds c to reg. When an equal collector is already registered, that one is returned
// so repeated construction shares series.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// AddSink appends a consumer. It must be called before the recorder is shared.
func (r *Recorder) AddSink(sink Sink) {
	if sink != nil {
		r.sinks = append(r.sinks, sink)
	}
}

// Record exports sample and forwards it.
func (r *Recorder) Record(sample domain.MetricSample) {
	if r.requests != nil {
		r.requests.WithLabelValues(string(sample.Endpoint), string(sample.StatusClass), sample.ErrorKind).Inc()
		r.latency.WithLabelValues(string(sample.Endpoint), string(sample.StatusClass)).Observe(float64(sample.LatencyMS) / 1000)
	}
	for _, sink := range r.sinks {
		sink.Record(sample)
	}
}

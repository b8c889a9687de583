package alarm

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/telemetry"
)

type evaluatorMetrics struct {
	state       *prometheus.GaugeVec
	breaching   *prometheus.GaugeVec
	lateSamples *prometheus.CounterVec
}

// newEvaluatorMetrics registers the alarm collectors on reg. A nil reg disables metrics.
func newEvaluatorMetrics(reg prometheus.Registerer) *evaluatorMetrics {
	if reg == nil {
		return nil
	}
	m := &evaluatorMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "itemsvc",
			Subsystem: "alarm",
			Name:      "state",
			Help:      "1 while the alarm is in the alarming state",
		}, []string{"alarm", "endpoint", "kind"}),
		breaching: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "itemsvc",
			Subsystem: "alarm",
			Name:      "breaching_datapoints",
			Help:      "Breaching periods inside the evaluation window",
		}, []string{"alarm", "endpoint", "kind"}),
		lateSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemsvc",
			Subsystem: "alarm",
			Name:      "late_samples_total",
			Help:      "Samples dropped because their period was already evaluated",
		}, []string{"endpoint"}),
	}
	m.state = telemetry.Register(reg, m.state)
	m.breaching = telemetry.Register(reg, m.breaching)
	m.lateSamples = telemetry.Register(reg, m.lateSamples)
	return m
}

func (m *evaluatorMetrics) setState(def domain.AlarmDefinition, alarming bool, breaching int) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"alarm": def.Name, "endpoint": string(def.Endpoint), "kind": string(def.Kind)}
	value := 0.0
	if alarming {
		value = 1
	}
	m.state.With(labels).Set(value)
	m.breaching.With(labels).Set(float64(breaching))
}

func (m *evaluatorMetrics) lateSample(endpoint domain.Endpoint) {
	if m == nil {
		return
	}
	m.lateSamples.WithLabelValues(string(endpoint)).Inc()
}

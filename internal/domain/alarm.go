package domain

import "time"

// AlarmKind identifies the derived metric an alarm watches.
type AlarmKind string

const (
	AlarmErrorRate AlarmKind = "ErrorRate"
	AlarmLatency   AlarmKind = "Latency"
)

// Comparison is the operator applied between the period value and the threshold.
type Comparison string

const (
	GreaterOrEqual Comparison = "GreaterThanOrEqualToThreshold"
	GreaterThan    Comparison = "GreaterThanThreshold"
	LessThan       Comparison = "LessThanThreshold"
	LessOrEqual    Comparison = "LessThanOrEqualToThreshold"
)

// Compare applies the operator. Unknown operators never breach.
func (c Comparison) Compare(value, threshold float64) bool {
	switch c {
	case GreaterOrEqual:
		return value >= threshold
	case GreaterThan:
		return value > threshold
	case LessThan:
		return value < threshold
	case LessOrEqual:
		return value <= threshold
	default:
		return false
	}
}

// Statistic selects how latency samples of a period are reduced to one value.
type Statistic string

const (
	StatAverage Statistic = "Average"
	StatMaximum Statistic = "Maximum"
	StatP90     Statistic = "p90"
	StatP99     Statistic = "p99"
)

// MissingDataPolicy decides how a period without samples is evaluated.
type MissingDataPolicy string

const (
	TreatAsNotBreaching MissingDataPolicy = "notBreaching"
	TreatAsBreaching    MissingDataPolicy = "breaching"
	IgnoreMissing       MissingDataPolicy = "ignore"
)

// AlarmDefinition configures one alarm for an endpoint and metric kind.
type AlarmDefinition struct {
	Name              string            `yaml:"name" json:"name"`
	Endpoint          Endpoint          `yaml:"endpoint" json:"endpoint"`
	Kind              AlarmKind         `yaml:"kind" json:"kind"`
	Threshold         float64           `yaml:"threshold" json:"threshold"`
	Statistic         Statistic         `yaml:"statistic,omitempty" json:"statistic,omitempty"`
	EvaluationPeriods int               `yaml:"evaluationPeriods" json:"evaluationPeriods"`
	DatapointsToAlarm int               `yaml:"datapointsToAlarm" json:"datapointsToAlarm"`
	Comparison        Comparison        `yaml:"comparison" json:"comparison"`
	MissingData       MissingDataPolicy `yaml:"missingData" json:"missingData"`
	Description       string            `yaml:"description" json:"description"`
}

// AlarmState is a read-only snapshot of an alarm state machine.
type AlarmState struct {
	Name          string    `json:"name"`
	Endpoint      Endpoint  `json:"endpoint"`
	Kind          AlarmKind `json:"kind"`
	Window        []bool    `json:"window"`
	Breaching     int       `json:"breaching"`
	Alarming      bool      `json:"alarming"`
	LastValue     float64   `json:"lastValue"`
	LastHasData   bool      `json:"lastHasData"`
	LastPeriod    time.Time `json:"lastPeriod"`
	TransitionAt  time.Time `json:"transitionAt,omitempty"`
	Threshold     float64   `json:"threshold"`
	EvalPeriods   int       `json:"evaluationPeriods"`
	DatapointsMin int       `json:"datapointsToAlarm"`
}

// AlarmNotification is published when an alarm changes state.
type AlarmNotification struct {
	Name              string    `json:"name"`
	Endpoint          Endpoint  `json:"endpoint"`
	Kind              AlarmKind `json:"kind"`
	ThresholdBreached bool      `json:"thresholdBreached"`
	Description       string    `json:"description"`
	Value             float64   `json:"value"`
	Threshold         float64   `json:"threshold"`
	Period            time.Time `json:"period"`
	OccurredAt        time.Time `json:"occurredAt"`
}

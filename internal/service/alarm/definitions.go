package alarm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const (
	DefaultErrorRateThreshold = 20
	DefaultLatencyThresholdMS = 500
	DefaultEvaluationPeriods  = 3
	DefaultDatapointsToAlarm  = 2
)

var defaultAlarmNames = map[domain.Endpoint][2]string{
	domain.EndpointList:    {"GetAllItemsAlarm", "GetAllItemsLatencyAlarm"},
	domain.EndpointGetByID: {"GetItemByIdAlarm", "GetItemByIdLatencyAlarm"},
	domain.EndpointPut:     {"PutItemAlarm", "PutItemLatencyAlarm"},
}

// DefaultDefinitions returns an error rate and a latency alarm for every endpoint.
func DefaultDefinitions() []domain.AlarmDefinition {
	defs := make([]domain.AlarmDefinition, 0, len(domain.Endpoints)*2)
	for _, ep := range domain.Endpoints {
		names := defaultAlarmNames[ep]
		defs = append(defs,
			domain.AlarmDefinition{
				Name:              names[0],
				Endpoint:          ep,
				Kind:              domain.AlarmErrorRate,
				Threshold:         DefaultErrorRateThreshold,
				EvaluationPeriods: DefaultEvaluationPeriods,
				DatapointsToAlarm: DefaultDatapointsToAlarm,
				Comparison:        domain.GreaterOrEqual,
				MissingData:       domain.TreatAsNotBreaching,
				Description:       fmt.Sprintf("API Gateway %s success rate below 80%%", ep.Route()),
			},
			domain.AlarmDefinition{
				Name:              names[1],
				Endpoint:          ep,
				Kind:              domain.AlarmLatency,
				Threshold:         DefaultLatencyThresholdMS,
				Statistic:         domain.StatAverage,
				EvaluationPeriods: DefaultEvaluationPeriods,
				DatapointsToAlarm: DefaultDatapointsToAlarm,
				Comparison:        domain.GreaterOrEqual,
				MissingData:       domain.TreatAsNotBreaching,
				Description:       fmt.Sprintf("API Gateway %s latency exceeds %dms", ep.Route(), DefaultLatencyThresholdMS),
			},
		)
	}
	return defs
}

type definitionFile struct {
	Alarms []domain.AlarmDefinition `yaml:"alarms"`
}

// LoadDefinitions reads alarm definitions from a YAML file of the form
//
//	alarms:
//	  - name: GetAllItemsAlarm
//	    endpoint: List
//	    kind: ErrorRate
//	    threshold: 20
//
// Omitted fields take the defaults used by DefaultDefinitions.
func LoadDefinitions(path string) ([]domain.AlarmDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alarm definitions: %w", err)
	}
	return ParseDefinitions(raw)
}

// ParseDefinitions decodes and validates YAML alarm definitions.
func ParseDefinitions(raw []byte) ([]domain.AlarmDefinition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode alarm definitions: %w", err)
	}
	if len(file.Alarms) == 0 {
		return nil, errors.New("alarm definitions: no alarms defined")
	}
	defs := make([]domain.AlarmDefinition, len(file.Alarms))
	for i, def := range file.Alarms {
		defs[i] = withDefaults(def)
	}
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func withDefaults(def domain.AlarmDefinition) domain.AlarmDefinition {
	def.Name = strings.TrimSpace(def.Name)
	if def.EvaluationPeriods == 0 {
		def.EvaluationPeriods = DefaultEvaluationPeriods
	}
	if def.DatapointsToAlarm == 0 {
		def.DatapointsToAlarm = min(DefaultDatapointsToAlarm, def.EvaluationPeriods)
	}
	if def.Comparison == "" {
		def.Comparison = domain.GreaterOrEqual
	}
	if def.MissingData == "" {
		def.MissingData = domain.TreatAsNotBreaching
	}
	if def.Kind == domain.AlarmLatency && def.Statistic == "" {
		def.Statistic = domain.StatAverage
	}
	if def.Name == "" {
		def.Name = fmt.Sprintf("%s%sAlarm", def.Endpoint, def.Kind)
	}
	return def
}

// ValidateDefinitions checks every definition and rejects two alarms on the same endpoint and
// kind.
func ValidateDefinitions(defs []domain.AlarmDefinition) error {
	type pair struct {
		endpoint domain.Endpoint
		kind     domain.AlarmKind
	}
	seen := make(map[pair]string, len(defs))
	names := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return errors.New("alarm name is required")
		}
		if names[def.Name] {
			return fmt.Errorf("alarm %s: duplicate name", def.Name)
		}
		names[def.Name] = true
		if !def.Endpoint.Valid() {
			return fmt.Errorf("alarm %s: unknown endpoint %q", def.Name, def.Endpoint)
		}
		switch def.Kind {
		case domain.AlarmErrorRate, domain.AlarmLatency:
		default:
			return fmt.Errorf("alarm %s: unknown kind %q", def.Name, def.Kind)
		}
		if def.EvaluationPeriods < 1 {
			return fmt.Errorf("alarm %s: evaluationPeriods must be positive", def.Name)
		}
		if def.DatapointsToAlarm < 1 || def.DatapointsToAlarm > def.EvaluationPeriods {
			return fmt.Errorf("alarm %s: datapointsToAlarm must be between 1 and %d", def.Name, def.EvaluationPeriods)
		}
		switch def.Comparison {
		case domain.GreaterOrEqual, domain.GreaterThan, domain.LessThan, domain.LessOrEqual:
		default:
			return fmt.Errorf("alarm %s: unknown comparison %q", def.Name, def.Comparison)
		}
		switch def.MissingData {
		case domain.TreatAsNotBreaching, domain.TreatAsBreaching, domain.IgnoreMissing:
		default:
			return fmt.Errorf("alarm %s: unknown missing data policy %q", def.Name, def.MissingData)
		}
		if def.Kind == domain.AlarmLatency {
			switch def.Statistic {
			case domain.StatAverage, domain.StatMaximum, domain.StatP90, domain.StatP99:
			default:
				return fmt.Errorf("alarm %s: unknown statistic %q", def.Name, def.Statistic)
			}
		}
		key := pair{def.Endpoint, def.Kind}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("alarm %s: %s %s already watched by %s", def.Name, def.Endpoint, def.Kind, other)
		}
		seen[key] = def.Name
	}
	return nil
}

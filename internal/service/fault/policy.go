// Package fault decides which injected faults apply to a single item request.
package fault

import "time"

const (
	DefaultLatencyMS          = 800
	DefaultWrongIDProbability = 50
	maxWrongIDProbabilityPct  = 100
)

// Settings is the raw configuration surface, before normalisation.
type Settings struct {
	InjectLatency             bool
	LatencyAmountMS           int
	InjectWrongIDs            bool
	WrongIDProbabilityPct     int
	SimulateThrottling        bool
	SimulateStoreAccessDenied bool
}

// Policy is an immutable snapshot of the active fault modes.
type Policy struct {
	injectLatency             bool
	latencyAmount             time.Duration
	injectWrongIDs            bool
	wrongIDProbabilityPct     int
	simulateThrottling        bool
	simulateStoreAccessDenied bool
}

// PolicyFromSettings normalises s: the probability is clamped to [0,100] and a negative
// latency becomes zero.
func PolicyFromSettings(s Settings) Policy {
	pct := s.WrongIDProbabilityPct
	if pct < 0 {
		pct = 0
	}
	if pct > maxWrongIDProbabilityPct {
		pct = maxWrongIDProbabilityPct
	}
	latency := s.LatencyAmountMS
	if latency < 0 {
		latency = 0
	}
	return Policy{
		injectLatency:             s.InjectLatency,
		latencyAmount:             time.Duration(latency) * time.Millisecond,
		injectWrongIDs:            s.InjectWrongIDs,
		wrongIDProbabilityPct:     pct,
		simulateThrottling:        s.SimulateThrottling,
		simulateStoreAccessDenied: s.SimulateStoreAccessDenied,
	}
}

func (p Policy) InjectLatency() bool             { return p.injectLatency }
func (p Policy) LatencyAmount() time.Duration    { return p.latencyAmount }
func (p Policy) InjectWrongIDs() bool            { return p.injectWrongIDs }
func (p Policy) WrongIDProbabilityPct() int      { return p.wrongIDProbabilityPct }
func (p Policy) SimulateThrottling() bool        { return p.simulateThrottling }
func (p Policy) SimulateStoreAccessDenied() bool { return p.simulateStoreAccessDenied }

// Settings returns the normalised settings backing p.
func (p Policy) Settings() Settings {
	return Settings{
		InjectLatency:             p.injectLatency,
		LatencyAmountMS:           int(p.latencyAmount / time.Millisecond),
		InjectWrongIDs:            p.injectWrongIDs,
		WrongIDProbabilityPct:     p.wrongIDProbabilityPct,
		SimulateThrottling:        p.simulateThrottling,
		SimulateStoreAccessDenied: p.simulateStoreAccessDenied,
	}
}

// Package alarm turns per-request metric samples into debounced alarm states.
package alarm

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const (
	DefaultPeriod = time.Minute
	// maxCatchUpPeriods bounds how many closed periods one Tick evaluates after a long pause.
	maxCatchUpPeriods = 1440
)

// Notifier receives alarm transitions. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n domain.AlarmNotification)
}

// Options tunes an Evaluator.
type Options struct {
	Period time.Duration
	// Grace delays the evaluation of a closed period so requests that started inside it can
	// still report. It is capped at half the period.
	Grace          time.Duration
	NotifyRecovery bool
	Now            func() time.Time
	Registerer     prometheus.Registerer
	Seed           int64
}

type alarmKey struct {
	endpoint domain.Endpoint
	kind     domain.AlarmKind
}

type machine struct {
	def          domain.AlarmDefinition
	since        time.Time
	window       []bool
	alarming     bool
	lastValue    float64
	lastHasData  bool
	lastPeriod   time.Time
	transitionAt time.Time
}

func (m *machine) breaching() int {
	n := 0
	for _, b := range m.window {
		if b {
			n++
		}
	}
	return n
}

// Evaluator keeps one state machine per (endpoint, kind), created when the endpoint reports
// its first sample, and evaluates every closed period in order.
type Evaluator struct {
	mu         sync.Mutex
	defs       map[domain.Endpoint][]domain.AlarmDefinition
	machines   map[alarmKey]*machine
	agg        *periodAggregator
	period     time.Duration
	grace      time.Duration
	nextPeriod time.Time
	maxWindow  int
	recovery   bool
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
	metrics    *evaluatorMetrics
}

// New validates defs and builds an evaluator. A nil notifier discards notifications.
func New(defs []domain.AlarmDefinition, notifier Notifier, logger *slog.Logger, opts Options) (*Evaluator, error) {
	if len(defs) == 0 {
		return nil, errors.New("no alarm definitions")
	}
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.Grace > opts.Period/2 {
		opts.Grace = opts.Period / 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == 0 {
		opts.Seed = opts.Now().UnixNano()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		defs:     make(map[domain.Endpoint][]domain.AlarmDefinition),
		machines: make(map[alarmKey]*machine),
		agg:      newPeriodAggregator(opts.Period, 0, opts.Seed),
		period:   opts.Period,
		grace:    opts.Grace,
		recovery: opts.NotifyRecovery,
		notifier: notifier,
		logger:   logger.With("component", "alarm_evaluator"),
		now:      opts.Now,
		metrics:  newEvaluatorMetrics(opts.Registerer),
	}
	for _, def := range defs {
		e.defs[def.Endpoint] = append(e.defs[def.Endpoint], def)
		if def.EvaluationPeriods > e.maxWindow {
			e.maxWindow = def.EvaluationPeriods
		}
	}
	return e, nil
}

// Period returns the evaluation period length.
func (e *Evaluator) Period() time.Duration { return e.period }

// Record implements the sample sink used by the metric recorder.
func (e *Evaluator) Record(sample domain.MetricSample) {
	e.Ingest(sample)
}

// Ingest adds a sample to its period bucket. Samples for a period that was already evaluated
// are dropped.
func (e *Evaluator) Ingest(sample domain.MetricSample) bool {
	if !sample.Endpoint.Valid() {
		return false
	}
	start := e.agg.periodStart(sample.Time())

	e.mu.Lock()
	if !e.nextPeriod.IsZero() && start.Before(e.nextPeriod) {
		e.mu.Unlock()
		e.metrics.lateSample(sample.Endpoint)
		e.logger.Debug("dropping sample for evaluated period", "endpoint", sample.Endpoint, "period", start)
		return false
	}
	if e.nextPeriod.IsZero() {
		e.nextPeriod = start
	}
	for _, def := range e.defs[sample.Endpoint] {
		key := alarmKey{endpoint: def.Endpoint, kind: def.Kind}
		if _, ok := e.machines[key]; ok {
			continue
		}
		e.machines[key] = &machine{def: def, since: start}
		e.metrics.setState(def, false, 0)
	}
	e.agg.add(sample)
	e.mu.Unlock()
	return true
}

// Tick evaluates every period that closed at least the grace delay before now and publishes
// transitions. It returns the notifications that were published.
func (e *Evaluator) Tick(ctx context.Context, now time.Time) []domain.AlarmNotification {
	e.mu.Lock()
	if e.nextPeriod.IsZero() {
		e.mu.Unlock()
		return nil
	}
	// Periods ending after cutoff may still receive samples from in-flight requests.
	cutoff := now.Add(-e.grace)
	pending := int(cutoff.Sub(e.nextPeriod) / e.period)
	if pending > maxCatchUpPeriods {
		skipTo := e.nextPeriod.Add(time.Duration(pending-e.maxWindow) * e.period)
		dropped := e.agg.dropBefore(skipTo)
		e.logger.Warn("skipping stale alarm periods", "from", e.nextPeriod, "to", skipTo, "dropped_buckets", dropped)
		e.nextPeriod = skipTo
	}

	var notes []domain.AlarmNotification
	for !e.nextPeriod.Add(e.period).After(cutoff) {
		notes = append(notes, e.evaluatePeriod(e.nextPeriod, now)...)
		e.nextPeriod = e.nextPeriod.Add(e.period)
	}
	e.mu.Unlock()

	if e.notifier != nil {
		for _, n := range notes {
			e.notifier.Notify(ctx, n)
		}
	}
	return notes
}

// evaluatePeriod runs one period for every live machine. Callers hold e.mu.
func (e *Evaluator) evaluatePeriod(start, now time.Time) []domain.AlarmNotification {
	var notes []domain.AlarmNotification
	stats := make(map[domain.Endpoint]PeriodStats)
	hasData := make(map[domain.Endpoint]bool)
	for _, ep := range domain.Endpoints {
		stats[ep], hasData[ep] = e.agg.take(ep, start)
	}

	for _, key := range e.sortedKeys() {
		m := e.machines[key]
		if start.Before(m.since) {
			continue
		}
		st, ok := stats[key.endpoint], hasData[key.endpoint]
		breach, value, counted := evaluate(m.def, st, ok)
		m.lastPeriod = start
		m.lastHasData = ok
		m.lastValue = value
		if !counted {
			continue
		}
		m.window = append(m.window, breach)
		if len(m.window) > m.def.EvaluationPeriods {
			m.window = m.window[len(m.window)-m.def.EvaluationPeriods:]
		}
		count := m.breaching()
		switch {
		case count >= m.def.DatapointsToAlarm && !m.alarming:
			m.alarming = true
			m.transitionAt = now
			e.logger.Warn("alarm triggered", "alarm", m.def.Name, "endpoint", key.endpoint, "kind", key.kind, "value", value, "threshold", m.def.Threshold, "breaching", count)
			notes = append(notes, notification(m, value, start, now, true))
		case count < m.def.DatapointsToAlarm && m.alarming:
			m.alarming = false
			m.transitionAt = now
			e.logger.Info("alarm recovered", "alarm", m.def.Name, "endpoint", key.endpoint, "kind", key.kind, "value", value)
			if e.recovery {
				notes = append(notes, notification(m, value, start, now, false))
			}
		}
		e.metrics.setState(m.def, m.alarming, count)
	}
	return notes
}

// evaluate reduces one period to a value and breach flag. counted is false when the period
// is ignored under the missing data policy.
func evaluate(def domain.AlarmDefinition, st PeriodStats, hasData bool) (breach bool, value float64, counted bool) {
	if !hasData {
		switch def.MissingData {
		case domain.TreatAsBreaching:
			return true, 0, true
		case domain.IgnoreMissing:
			return false, 0, false
		default:
			return false, 0, true
		}
	}
	switch def.Kind {
	case domain.AlarmLatency:
		value = st.Latency(def.Statistic)
	default:
		value = st.ErrorRate()
	}
	return def.Comparison.Compare(value, def.Threshold), value, true
}

func notification(m *machine, value float64, period, now time.Time, breached bool) domain.AlarmNotification {
	return domain.AlarmNotification{
		Name:              m.def.Name,
		Endpoint:          m.def.Endpoint,
		Kind:              m.def.Kind,
		ThresholdBreached: breached,
		Description:       m.def.Description,
		Value:             value,
		Threshold:         m.def.Threshold,
		Period:            period,
		OccurredAt:        now,
	}
}

// Run ticks once per period, the grace delay after each period boundary, until ctx is
// cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	e.logger.Info("alarm evaluator started", "period", e.period, "grace", e.grace, "alarms", len(e.allDefinitions()))
	timer := time.NewTimer(e.untilNextTick(e.now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("alarm evaluator stopped")
			return
		case <-timer.C:
			e.Tick(ctx, e.now())
			timer.Reset(e.untilNextTick(e.now()))
		}
	}
}

// untilNextTick returns the wait until the next period boundary plus grace.
func (e *Evaluator) untilNextTick(now time.Time) time.Duration {
	next := now.Truncate(e.period).Add(e.grace)
	for !next.After(now) {
		next = next.Add(e.period)
	}
	return next.Sub(now)
}

// States returns a snapshot of every live alarm, ordered by endpoint and kind.
func (e *Evaluator) States() []domain.AlarmState {
	e.mu.Lock()
	defer e.mu.Unlock()
	states := make([]domain.AlarmState, 0, len(e.machines))
	for _, key := range e.sortedKeys() {
		m := e.machines[key]
		states = append(states, domain.AlarmState{
			Name:          m.def.Name,
			Endpoint:      m.def.Endpoint,
			Kind:          m.def.Kind,
			Window:        append([]bool(nil), m.window...),
			Breaching:     m.breaching(),
			Alarming:      m.alarming,
			LastValue:     m.lastValue,
			LastHasData:   m.lastHasData,
			LastPeriod:    m.lastPeriod,
			TransitionAt:  m.transitionAt,
			Threshold:     m.def.Threshold,
			EvalPeriods:   m.def.EvaluationPeriods,
			DatapointsMin: m.def.DatapointsToAlarm,
		})
	}
	return states
}

// Definitions returns the configured alarms.
func (e *Evaluator) Definitions() []domain.AlarmDefinition {
	return e.allDefinitions()
}

func (e *Evaluator) allDefinitions() []domain.AlarmDefinition {
	var defs []domain.AlarmDefinition
	for _, ep := range domain.Endpoints {
		defs = append(defs, e.defs[ep]...)
	}
	return defs
}

func (e *Evaluator) sortedKeys() []alarmKey {
	keys := make([]alarmKey, 0, len(e.machines))
	for key := range e.machines {
		keys = append(keys, key)
	}
	order := make(map[domain.Endpoint]int, len(domain.Endpoints))
	for i, ep := range domain.Endpoints {
		order[ep] = i
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].endpoint != keys[j].endpoint {
			return order[keys[i].endpoint] < order[keys[j].endpoint]
		}
		return keys[i].kind < keys[j].kind
	})
	return keys
}

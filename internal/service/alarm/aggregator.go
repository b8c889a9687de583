package alarm

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const defaultPeriodSamples = 512

type bucketKey struct {
	endpoint domain.Endpoint
	start    time.Time
}

type periodBucket struct {
	count      int64
	errorCount int64
	latencies  []float64
	latencySum float64
	latencyMax float64
}

// PeriodStats summarises the samples of one endpoint in one period.
type PeriodStats struct {
	Endpoint domain.Endpoint
	Start    time.Time
	Count    int64
	Errors   int64
	AvgMS    float64
	MaxMS    float64
	P90MS    float64
	P99MS    float64
}

// ErrorRate is the percentage of samples counted as errors.
func (p PeriodStats) ErrorRate() float64 {
	if p.Count == 0 {
		return 0
	}
	return 100 * float64(p.Errors) / float64(p.Count)
}

// Latency reduces the period latencies with stat.
func (p PeriodStats) Latency(stat domain.Statistic) float64 {
	switch stat {
	case domain.StatMaximum:
		return p.MaxMS
	case domain.StatP90:
		return p.P90MS
	case domain.StatP99:
		return p.P99MS
	default:
		return p.AvgMS
	}
}

// periodAggregator buckets samples per endpoint and fixed period. Percentiles come from a
// bounded reservoir per bucket.
type periodAggregator struct {
	mu         sync.Mutex
	span       time.Duration
	maxSamples int
	buckets    map[bucketKey]*periodBucket
	random     *rand.Rand
}

func newPeriodAggregator(span time.Duration, maxSamples int, seed int64) *periodAggregator {
	if span <= 0 {
		span = time.Minute
	}
	if maxSamples <= 0 {
		maxSamples = defaultPeriodSamples
	}
	return &periodAggregator{
		span:       span,
		maxSamples: maxSamples,
		buckets:    make(map[bucketKey]*periodBucket),
		random:     rand.New(rand.NewSource(seed)),
	}
}

func (a *periodAggregator) periodStart(t time.Time) time.Time {
	return t.Truncate(a.span)
}

func (a *periodAggregator) add(sample domain.MetricSample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := bucketKey{endpoint: sample.Endpoint, start: a.periodStart(sample.Time())}
	bucket := a.buckets[key]
	if bucket == nil {
		bucket = &periodBucket{}
		a.buckets[key] = bucket
	}
	bucket.count++
	if sample.CountsAsError() {
		bucket.errorCount++
	}
	lat := float64(sample.LatencyMS)
	bucket.latencySum += lat
	if bucket.count == 1 || lat > bucket.latencyMax {
		bucket.latencyMax = lat
	}
	if len(bucket.latencies) < a.maxSamples {
		bucket.latencies = append(bucket.latencies, lat)
		return
	}
	// Algorithm R: every sample seen so far stays in the reservoir with equal probability.
	if j := a.random.Int63n(bucket.count); j < int64(a.maxSamples) {
		bucket.latencies[j] = lat
	}
}

// take removes and summarises the bucket for endpoint at start.
func (a *periodAggregator) take(endpoint domain.Endpoint, start time.Time) (PeriodStats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := bucketKey{endpoint: endpoint, start: start}
	bucket, ok := a.buckets[key]
	if !ok {
		return PeriodStats{Endpoint: endpoint, Start: start}, false
	}
	delete(a.buckets, key)
	return bucket.stats(key), true
}

// dropBefore discards buckets whose period started before cutoff and reports how many.
func (a *periodAggregator) dropBefore(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := 0
	for key := range a.buckets {
		if key.start.Before(cutoff) {
			delete(a.buckets, key)
			dropped++
		}
	}
	return dropped
}

func (b *periodBucket) stats(key bucketKey) PeriodStats {
	s := PeriodStats{
		Endpoint: key.endpoint,
		Start:    key.start,
		Count:    b.count,
		Errors:   b.errorCount,
		MaxMS:    b.latencyMax,
	}
	if b.count > 0 {
		s.AvgMS = b.latencySum / float64(b.count)
	}
	if len(b.latencies) > 0 {
		sorted := append([]float64(nil), b.latencies...)
		sort.Float64s(sorted)
		s.P90MS = percentile(sorted, 0.90)
		s.P99MS = percentile(sorted, 0.99)
	}
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	pos := p * float64(len(values)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return values[lower]
	}
	weight := pos - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

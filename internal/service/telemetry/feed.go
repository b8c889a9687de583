package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const defaultFeedSize = 4096

// Feed decouples request handling from sample consumers with a bounded queue. When the queue
// is full the sample is dropped and counted.
type Feed struct {
	ch      chan domain.MetricSample
	sink    Sink
	logger  *slog.Logger
	dropped atomic.Uint64
	drops   prometheus.Counter
}

// NewFeed creates a feed delivering to sink once Run is started.
func NewFeed(sink Sink, size int, logger *slog.Logger, reg prometheus.Registerer) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		ch:     make(chan domain.MetricSample, size),
		sink:   sink,
		logger: logger.With("component", "metric_feed"),
	}
	if reg != nil {
		f.drops = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "itemsvc",
			Subsystem: "telemetry",
			Name:      "dropped_samples_total",
			Help:      "Samples dropped because the feed was full",
		}))
	}
	return f
}

// Record enqueues sample without blocking.
func (f *Feed) Record(sample domain.MetricSample) {
	select {
	case f.ch <- sample:
	default:
		if n := f.dropped.Add(1); n == 1 || n%1000 == 0 {
			f.logger.Warn("metric feed full, dropping samples", "dropped_total", n)
		}
		if f.drops != nil {
			f.drops.Inc()
		}
	}
}

// Dropped reports how many samples were discarded.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

// Run delivers queued samples in arrival order until ctx is cancelled, then drains what is
// already queued.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case sample := <-f.ch:
			f.sink.Record(sample)
		case <-ctx.Done():
			for {
				select {
				case sample := <-f.ch:
					f.sink.Record(sample)
				default:
					return
				}
			}
		}
	}
}

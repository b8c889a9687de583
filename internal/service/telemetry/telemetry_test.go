package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	pkgtelemetry "github.com/ShannaChang/serverless-demo-for-aiops/pkg/telemetry"
)

type collectSink struct {
	mu      sync.Mutex
	samples []domain.MetricSample
}

func (c *collectSink) Record(sample domain.MetricSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
}

func (c *collectSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

type stubEmitter struct {
	got []pkgtelemetry.Sample
	err error
}

func (s *stubEmitter) Emit(_ context.Context, samples ...pkgtelemetry.Sample) error {
	s.got = append(s.got, samples...)
	return s.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecorderExportsAndForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := &collectSink{}
	rec := NewRecorder(reg, sink)

	rec.Record(domain.MetricSample{Endpoint: domain.EndpointList, StatusClass: domain.StatusThrottled, LatencyMS: 3, ErrorKind: "CapacityExceededError"})
	rec.Record(domain.MetricSample{Endpoint: domain.EndpointList, StatusClass: domain.StatusSuccess, LatencyMS: 5})

	if sink.len() != 2 {
		t.Fatalf("expected 2 forwarded samples, got %d", sink.len())
	}
	got := testutil.ToFloat64(rec.requests.WithLabelValues("List", "Throttled", "CapacityExceededError"))
	if got != 1 {
		t.Fatalf("expected throttled counter 1, got %v", got)
	}

	again := NewRecorder(reg)
	if again.requests != rec.requests {
		t.Fatalf("expected existing collector to be reused")
	}
}

func TestFeedDeliversInOrder(t *testing.T) {
	sink := &collectSink{}
	feed := NewFeed(sink, 16, quiet(), nil)
	for i := 1; i <= 5; i++ {
		feed.Record(domain.MetricSample{Endpoint: domain.EndpointPut, TimestampMS: uint64(i)})
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for sink.len() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sink.len() != 5 {
		t.Fatalf("expected 5 samples, got %d", sink.len())
	}
	for i, s := range sink.samples {
		if s.TimestampMS != uint64(i+1) {
			t.Fatalf("out of order delivery: %+v", sink.samples)
		}
	}
}

func TestFeedDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	feed := NewFeed(&collectSink{}, 2, quiet(), reg)
	for i := 0; i < 5; i++ {
		feed.Record(domain.MetricSample{Endpoint: domain.EndpointList})
	}
	if feed.Dropped() != 3 {
		t.Fatalf("expected 3 dropped, got %d", feed.Dropped())
	}
	if got := testutil.ToFloat64(feed.drops); got != 3 {
		t.Fatalf("expected drop counter 3, got %v", got)
	}
}

func TestFeedDrainsOnShutdown(t *testing.T) {
	sink := &collectSink{}
	feed := NewFeed(sink, 8, quiet(), nil)
	for i := 0; i < 3; i++ {
		feed.Record(domain.MetricSample{Endpoint: domain.EndpointList})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	feed.Run(ctx)
	if sink.len() != 3 {
		t.Fatalf("expected queued samples drained, got %d", sink.len())
	}
}

func TestRemoteSinkConvertsAndSwallowsErrors(t *testing.T) {
	emitter := &stubEmitter{err: errors.New("offline")}
	sink := NewRemoteSink(emitter, quiet())
	sink.Record(domain.MetricSample{Endpoint: domain.EndpointGetByID, TimestampMS: 9, StatusClass: domain.StatusServerError, LatencyMS: 7, ErrorKind: "NotFoundError"})

	if len(emitter.got) != 1 {
		t.Fatalf("expected one emitted sample, got %d", len(emitter.got))
	}
	if emitter.got[0].Endpoint != "GetById" || emitter.got[0].ErrorKind != "NotFoundError" {
		t.Fatalf("unexpected wire sample %+v", emitter.got[0])
	}
}

func TestFromWireValidates(t *testing.T) {
	if _, ok := FromWire(pkgtelemetry.Sample{Endpoint: "Delete", StatusClass: "Success", TimestampMS: 1}); ok {
		t.Fatal("expected unknown endpoint to be rejected")
	}
	if _, ok := FromWire(pkgtelemetry.Sample{Endpoint: "List", StatusClass: "Weird", TimestampMS: 1}); ok {
		t.Fatal("expected unknown status class to be rejected")
	}
	sample, ok := FromWire(pkgtelemetry.Sample{Endpoint: "List", StatusClass: "Throttled", TimestampMS: 10, LatencyMS: 4})
	if !ok || !sample.CountsAsError() {
		t.Fatalf("expected valid throttled sample, got %+v %v", sample, ok)
	}
}

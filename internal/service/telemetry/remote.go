package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	pkgtelemetry "github.com/ShannaChang/serverless-demo-for-aiops/pkg/telemetry"
)

const remoteTimeout = 2 * time.Second

// Emitter is the remote transport used by RemoteSink.
type Emitter interface {
	Emit(ctx context.Context, samples ...pkgtelemetry.Sample) error
}

// RemoteSink ships each sample to a remote evaluator. Failures are logged and the sample is
// lost; it is meant to sit behind a Feed so the request path never waits on the network.
type RemoteSink struct {
	emitter Emitter
	logger  *slog.Logger
}

// NewRemoteSink wraps emitter.
func NewRemoteSink(emitter Emitter, logger *slog.Logger) *RemoteSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSink{emitter: emitter, logger: logger.With("component", "remote_telemetry")}
}

func (r *RemoteSink) Record(sample domain.MetricSample) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if err := r.emitter.Emit(ctx, ToWire(sample)); err != nil {
		r.logger.Warn("failed to ship metric sample", "endpoint", sample.Endpoint, "error", err)
	}
}

// ToWire converts a sample to its transport form.
func ToWire(sample domain.MetricSample) pkgtelemetry.Sample {
	return pkgtelemetry.Sample{
		Endpoint:    string(sample.Endpoint),
		TimestampMS: sample.TimestampMS,
		StatusClass: string(sample.StatusClass),
		LatencyMS:   sample.LatencyMS,
		ErrorKind:   sample.ErrorKind,
	}
}

// FromWire validates and converts a transport sample.
func FromWire(s pkgtelemetry.Sample) (domain.MetricSample, bool) {
	sample := domain.MetricSample{
		Endpoint:    domain.Endpoint(s.Endpoint),
		TimestampMS: s.TimestampMS,
		StatusClass: domain.StatusClass(s.StatusClass),
		LatencyMS:   s.LatencyMS,
		ErrorKind:   s.ErrorKind,
	}
	if !sample.Endpoint.Valid() || !sample.StatusClass.Valid() || sample.TimestampMS == 0 {
		return domain.MetricSample{}, false
	}
	return sample, true
}

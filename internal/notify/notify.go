// Package notify publishes alarm transitions to the configured channels.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

const defaultSendTimeout = 5 * time.Second

// Channel delivers one notification to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n domain.AlarmNotification) error
}

// Multi fans a notification out to every channel on its own goroutine. Delivery is attempted
// once; failures are logged.
type Multi struct {
	channels []Channel
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewMulti builds a fan-out over channels.
func NewMulti(logger *slog.Logger, channels ...Channel) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{channels: channels, logger: logger.With("component", "alarm_notify"), timeout: defaultSendTimeout}
}

// Channels lists the configured channel names.
func (m *Multi) Channels() []string {
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name()
	}
	return names
}

// Notify dispatches n and returns immediately.
func (m *Multi) Notify(ctx context.Context, n domain.AlarmNotification) {
	base := context.WithoutCancel(ctx)
	for _, ch := range m.channels {
		m.wg.Add(1)
		go func(ch Channel) {
			defer m.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, m.timeout)
			defer cancel()
			if err := ch.Send(sendCtx, n); err != nil {
				m.logger.Error("alarm notification failed", "channel", ch.Name(), "alarm", n.Name, "error", err)
			}
		}(ch)
	}
}

// Wait blocks until in-flight deliveries finish.
func (m *Multi) Wait() {
	m.wg.Wait()
}

// Log writes notifications to the service log.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a log channel.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, n domain.AlarmNotification) error {
	attrs := []any{"alarm", n.Name, "endpoint", n.Endpoint, "kind", n.Kind, "value", n.Value, "threshold", n.Threshold, "period", n.Period}
	if n.ThresholdBreached {
		l.logger.Warn("ALARM: "+n.Description, attrs...)
	} else {
		l.logger.Info("OK: "+n.Description, attrs...)
	}
	return nil
}

// Encode renders the published payload.
func Encode(n domain.AlarmNotification) ([]byte, error) {
	return json.Marshal(n)
}

package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// sseRetryMS is the reconnect delay advertised to EventSource clients.
const sseRetryMS = 3000

// SSEClient streams Server-Sent Events over an HTTP response writer. Every payload is sent as
// a named event with a sequence id so reconnecting clients can tell what they missed.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	event   string
	log     *slog.Logger
	seq     uint64
	closed  bool
	done    chan struct{}
}

// NewSSEClient builds an SSE client emitting payloads as event. An empty event sends unnamed
// message frames.
func NewSSEClient(writer io.Writer, flusher http.Flusher, event string, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: writer, flusher: flusher, event: event, log: logger, done: make(chan struct{})}
}

// Send emits payload as one event.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.seq++
	frame := fmt.Sprintf("id: %d\n", c.seq)
	if c.seq == 1 {
		frame = fmt.Sprintf("retry: %d\n", sseRetryMS) + frame
	}
	if c.event != "" {
		frame += "event: " + c.event + "\n"
	}
	return c.write(frame + "data: " + string(payload) + "\n\n")
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	return c.write(": ping\n\n")
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markClosed()
}

// Done is closed once the stream can no longer be written.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

// write must be called with mu held.
func (c *SSEClient) write(frame string) error {
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.markClosed()
		c.log.Warn("sse write failed", "event", c.event, "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEClient) markClosed() {
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/notify"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/items"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/telemetry"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/ws"
	pkgtelemetry "github.com/ShannaChang/serverless-demo-for-aiops/pkg/telemetry"
)

// AlarmSource exposes alarm state to the router.
type AlarmSource interface {
	States() []domain.AlarmState
	Definitions() []domain.AlarmDefinition
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(context.Context) error

// Options carries the optional collaborators of the router.
type Options struct {
	Alarms      AlarmSource
	Hub         *ws.Hub
	Ingest      items.Recorder
	IngestToken string
	Health      map[string]HealthCheck
	// Registerer receives the route metrics; nil means the default registry.
	Registerer prometheus.Registerer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	items       *ItemHandler
	alarms      AlarmSource
	hub         *ws.Hub
	ingest      items.Recorder
	ingestToken string
	health      map[string]HealthCheck
	upgrader    websocket.Upgrader
	metrics     *routeMetrics
	exposition  http.Handler
}

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second // also the websocket ping interval
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, handler *ItemHandler, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		items:       handler,
		alarms:      opts.Alarms,
		hub:         opts.Hub,
		ingest:      opts.Ingest,
		ingestToken: strings.TrimSpace(opts.IngestToken),
		health:      opts.Health,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics:    newRouteMetrics(opts.Registerer),
		exposition: promhttp.Handler(),
	}
	if g, ok := opts.Registerer.(prometheus.Gatherer); ok {
		r.exposition = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.Handle("/metrics", r.exposition)
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/items", r.audit("/items", r.handleItems))
	r.mux.HandleFunc("/items/", r.audit("/items/{id}", r.handleItem))
	r.mux.HandleFunc("/alarms", r.audit("/alarms", r.handleAlarms))
	r.mux.HandleFunc("/alarms/definitions", r.audit("/alarms/definitions", r.handleAlarmDefinitions))
	r.mux.HandleFunc("/alarms/stream", r.audit("/alarms/stream", r.handleAlarmStream))
	r.mux.HandleFunc("/ws/alarms", r.audit("/ws/alarms", r.handleAlarmsWS))
	r.mux.HandleFunc(pkgtelemetry.SamplesPath, r.audit(pkgtelemetry.SamplesPath, r.handleTelemetrySamples))
}

func (r *Router) handleItems(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(w, req)
	if err != nil {
		writeResponse(w, r.items.unreadableBody(req.Method, err))
		return
	}
	writeResponse(w, r.items.Collection(req.Context(), req.Method, body))
}

func (r *Router) handleItem(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/items/")
	if strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	writeResponse(w, r.items.Get(req.Context(), req.Method, id))
}

func (r *Router) handleAlarms(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.alarms == nil {
		writeJSON(w, http.StatusOK, []domain.AlarmState{})
		return
	}
	writeJSON(w, http.StatusOK, r.alarms.States())
}

func (r *Router) handleAlarmDefinitions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.alarms == nil {
		writeJSON(w, http.StatusOK, []domain.AlarmDefinition{})
		return
	}
	writeJSON(w, http.StatusOK, r.alarms.Definitions())
}

func (r *Router) handleAlarmStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		r.notFound(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, "alarm", r.logger)
	r.hub.Register(notify.AlarmTopic, client)
	defer func() {
		r.hub.Unregister(notify.AlarmTopic, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleAlarmsWS(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		r.notFound(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(notify.AlarmTopic, client)
	closed := make(chan struct{})
	go func() {
		defer func() {
			close(closed)
			r.hub.Unregister(notify.AlarmTopic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()
}

func (r *Router) handleTelemetrySamples(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.ingest == nil {
		r.notFound(w)
		return
	}
	if !r.verifyIngestToken(w, req) {
		return
	}
	var batch pkgtelemetry.Batch
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(batch.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "samples are required")
		return
	}
	accepted, rejected := 0, 0
	for _, wire := range batch.Samples {
		sample, ok := telemetry.FromWire(wire)
		if !ok {
			rejected++
			continue
		}
		r.ingest.Record(sample)
		accepted++
	}
	r.metrics.samples("accepted", accepted)
	r.metrics.samples("rejected", rejected)
	if rejected > 0 {
		r.logger.Warn("discarded invalid samples", "source", batch.Source, "rejected", rejected)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "rejected": rejected})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.health))
	for name := range r.health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.health[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set(corsOriginHeader, "*")
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.metrics.observe(req.Method, route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

// verifyIngestToken ensures remote samples include the configured secret.
func (r *Router) verifyIngestToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.ingestToken
	if expected == "" {
		r.logger.Error("telemetry token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "telemetry authentication misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get(pkgtelemetry.TokenHeader))
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("telemetry token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid telemetry token")
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

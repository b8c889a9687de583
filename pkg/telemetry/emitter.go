// Package telemetry ships request metric samples to an item service that runs the alarm
// evaluator.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
	// TokenHeader carries the shared ingestion token.
	TokenHeader = "X-Telemetry-Token"
	// SamplesPath is the ingestion route.
	SamplesPath = "/telemetry/samples"
)

// ErrUnauthorized indicates the ingestion endpoint rejected the token.
var ErrUnauthorized = errors.New("telemetry unauthorized")

// ErrInvalidArgument indicates the endpoint rejected the payload.
var ErrInvalidArgument = errors.New("telemetry invalid argument")

// Sample is the wire form of one request outcome.
type Sample struct {
	Endpoint    string `json:"endpoint"`
	TimestampMS uint64 `json:"timestampMs"`
	StatusClass string `json:"statusClass"`
	LatencyMS   uint64 `json:"latencyMs"`
	ErrorKind   string `json:"errorKind,omitempty"`
}

// Batch is the request body accepted by the ingestion route.
type Batch struct {
	Source  string   `json:"source,omitempty"`
	Samples []Sample `json:"samples"`
}

// Emitter posts sample batches to a remote item service.
type Emitter struct {
	baseURL string
	token   string
	source  string
	client  *http.Client
	now     func() time.Time
}

// NewEmitter creates an emitter for the service at baseURL.
func NewEmitter(baseURL, token, source string, client *http.Client) (*Emitter, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("telemetry base url required")
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Emitter{
		baseURL: trimmed,
		token:   strings.TrimSpace(token),
		source:  strings.TrimSpace(source),
		client:  client,
		now:     time.Now,
	}, nil
}

// Emit sends samples in one request. Samples without a timestamp are stamped with the
// current time.
func (e *Emitter) Emit(ctx context.Context, samples ...Sample) error {
	if e == nil {
		return errors.New("telemetry emitter not initialised")
	}
	if len(samples) == 0 {
		return nil
	}
	batch := Batch{Source: e.source, Samples: make([]Sample, len(samples))}
	for i, s := range samples {
		if strings.TrimSpace(s.Endpoint) == "" {
			return errors.New("telemetry sample requires endpoint")
		}
		if s.TimestampMS == 0 {
			s.TimestampMS = uint64(e.now().UnixMilli())
		}
		batch.Samples[i] = s
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal telemetry batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+SamplesPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set(TokenHeader, e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telemetry request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, summary)
	default:
		return fmt.Errorf("telemetry request failed: %s", summary)
	}
}

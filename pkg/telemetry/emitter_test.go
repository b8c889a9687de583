package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != SamplesPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if token := r.Header.Get(TokenHeader); token != "secret" {
			t.Fatalf("unexpected token header %s", token)
		}
		var batch Batch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if batch.Source != "lambda" || len(batch.Samples) != 2 {
			t.Fatalf("unexpected batch %+v", batch)
		}
		if batch.Samples[0].TimestampMS == 0 {
			t.Fatalf("expected timestamp to be populated")
		}
		if batch.Samples[1].TimestampMS != 42 {
			t.Fatalf("expected explicit timestamp kept, got %d", batch.Samples[1].TimestampMS)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL+"/", " secret ", "lambda", nil)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	err = emitter.Emit(context.Background(),
		Sample{Endpoint: "List", StatusClass: "Success", LatencyMS: 12},
		Sample{Endpoint: "Put", StatusClass: "ServerError", TimestampMS: 42},
	)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestEmitUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, "", "", &http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	err = emitter.Emit(context.Background(), Sample{Endpoint: "List"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestEmitRequiresEndpoint(t *testing.T) {
	emitter, err := NewEmitter("https://items.example.com", "", "", nil)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if err := emitter.Emit(context.Background(), Sample{}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := emitter.Emit(context.Background()); err != nil {
		t.Fatalf("empty emit should be a no-op, got %v", err)
	}
}

func TestNewEmitterRequiresURL(t *testing.T) {
	if _, err := NewEmitter("  ", "", "", nil); err == nil {
		t.Fatal("expected error for empty url")
	}
}

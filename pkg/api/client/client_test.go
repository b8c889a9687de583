package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDefaultsScheme(t *testing.T) {
	cli, err := New("localhost:4000/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.baseURL != "http://localhost:4000" {
		t.Fatalf("unexpected base url %q", cli.baseURL)
	}
}

func TestPutAndGetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/items":
			var in PutItemInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Errorf("decode body: %v", err)
			}
			_ = json.NewEncoder(w).Encode(PutItemResponse{ID: "abc", Name: in.Name, BlobKey: "items/abc.json", Success: true})
		case r.Method == http.MethodGet && r.URL.Path == "/items/abc":
			_, _ = w.Write([]byte(`{"id":"abc","name":"widget","content":{"content":"x"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	put, err := cli.PutItem(context.Background(), PutItemInput{Name: "widget"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !put.Success || put.BlobKey != "items/abc.json" {
		t.Fatalf("unexpected put response %+v", put)
	}
	item, err := cli.GetItem(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Name != "widget" || string(item.Content) != `{"content":"x"}` {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"item not found","errorType":"NotFoundError","stackTrace":"not found"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	_, err := cli.GetItem(context.Background(), "missing")
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.ErrorType != "NotFoundError" || apiErr.Message != "item not found" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

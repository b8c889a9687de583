package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/ws"
)

var sampleNote = domain.AlarmNotification{
	Name:              "GetItemByIdAlarm",
	Endpoint:          domain.EndpointGetByID,
	Kind:              domain.AlarmErrorRate,
	ThresholdBreached: true,
	Description:       "API Gateway GET /items/{id} success rate below 80%",
	Value:             45,
	Threshold:         20,
}

type stubChannel struct {
	name string
	err  error
	mu   sync.Mutex
	got  []domain.AlarmNotification
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(_ context.Context, n domain.AlarmNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

type streamSubscriber struct {
	ch chan []byte
}

func (s streamSubscriber) Send(p []byte) error { s.ch <- p; return nil }
func (s streamSubscriber) Close()              {}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMultiDeliversToEveryChannel(t *testing.T) {
	ok := &stubChannel{name: "ok"}
	failing := &stubChannel{name: "failing", err: errors.New("down")}
	multi := NewMulti(quiet(), ok, failing)

	ctx, cancel := context.WithCancel(context.Background())
	multi.Notify(ctx, sampleNote)
	cancel()
	multi.Wait()

	require.Len(t, ok.got, 1)
	require.Len(t, failing.got, 1)
	require.Equal(t, []string{"ok", "failing"}, multi.Channels())
}

func TestLogChannelWritesDescription(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, ch.Send(context.Background(), sampleNote))
	require.Contains(t, buf.String(), "ALARM: API Gateway GET /items/{id} success rate below 80%")
	require.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestHubChannelBroadcasts(t *testing.T) {
	hub := ws.NewHub()
	defer hub.Close()
	sub := streamSubscriber{ch: make(chan []byte, 1)}
	hub.Register(AlarmTopic, sub)

	require.NoError(t, NewHub(hub).Send(context.Background(), sampleNote))
	select {
	case payload := <-sub.ch:
		var got domain.AlarmNotification
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Equal(t, sampleNote.Name, got.Name)
	case <-time.After(time.Second):
		t.Fatal("no payload delivered")
	}
}

func TestWebhookPostsJSON(t *testing.T) {
	received := make(chan domain.AlarmNotification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n domain.AlarmNotification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, srv.Client()).Send(context.Background(), sampleNote))
	got := <-received
	require.True(t, got.ThresholdBreached)
}

func TestWebhookReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).Send(context.Background(), sampleNote)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "502"))
}

func TestRedisPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "alarms-test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedis(client, "alarms-test").Send(ctx, sampleNote))

	select {
	case msg := <-sub.Channel():
		require.Contains(t, msg.Payload, "GetItemByIdAlarm")
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

package notify

import (
	"context"
	"errors"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/ws"
)

// AlarmTopic is the hub topic carrying every alarm notification.
const AlarmTopic = "alarms"

var errHubBusy = errors.New("alarm hub queue full")

// Hub pushes notifications to websocket and SSE subscribers.
type Hub struct {
	hub *ws.Hub
}

// NewHub wraps hub.
func NewHub(hub *ws.Hub) *Hub {
	return &Hub{hub: hub}
}

func (h *Hub) Name() string { return "stream" }

func (h *Hub) Send(_ context.Context, n domain.AlarmNotification) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	if !h.hub.Broadcast(AlarmTopic, payload) {
		return errHubBusy
	}
	return nil
}

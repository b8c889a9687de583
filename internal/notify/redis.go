package notify

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

// Redis publishes notifications on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis returns a pub/sub channel. The caller owns client.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "itemsvc:alarms"
	}
	return &Redis{client: client, channel: channel}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Send(ctx context.Context, n domain.AlarmNotification) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

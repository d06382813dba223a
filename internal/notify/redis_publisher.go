package notify

import (
	"context"
	"encoding/json"

	"github.com/aditya/haggle/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	notificationChannelPrefix = "notifications:"
	// ConversationHintChannel is consumed by the chat service.
	ConversationHintChannel = "conversations:hints"
)

// NotificationChannel is the pub/sub channel a user's notifications go to.
func NotificationChannel(userID string) string {
	return notificationChannelPrefix + userID
}

// RedisPublisher publishes notifications on per-user Redis channels, where
// the SSE stream picks them up.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Notify(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, NotificationChannel(n.RecipientID), data).Err()
}

func (p *RedisPublisher) Hint(ctx context.Context, h models.ConversationHint) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, ConversationHintChannel, data).Err()
}

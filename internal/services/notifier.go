package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studytrack/internal/events"
)

// RedisNotifier publishes user updates on the channel the websocket hub
// forwards to that user's sockets.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func UserUpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

func (n *RedisNotifier) PublishToUser(ctx context.Context, userID uuid.UUID, msg events.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, UserUpdatesChannel(userID), string(data)).Err()
}

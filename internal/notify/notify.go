// README: Notification channel contract and the Redis pub/sub implementation.
package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hitch/internal/types"
)

// Notifier delivers a rendered message to one user. The matching engine only
// produces the data for notifications; callers decide when to send them.
type Notifier interface {
	Notify(ctx context.Context, userID types.ID, message string) error
}

const channelPrefix = "notify:user:%s"

// RedisNotifier publishes messages on a per-user Redis channel consumed by
// the messaging-channel bridge.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID types.ID, message string) error {
	return n.redis.Publish(ctx, fmt.Sprintf(channelPrefix, string(userID)), message).Err()
}

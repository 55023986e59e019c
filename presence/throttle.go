package presence

import (
	"context"
	"time"

	"messenger-sync/logger"

	"github.com/redis/go-redis/v9"
)

// Throttle decides whether a presence touch may be written now.
type Throttle interface {
	Allow(ctx context.Context, userID string) bool
}

type NoThrottle struct{}

func (NoThrottle) Allow(context.Context, string) bool { return true }

// RedisThrottle admits one touch per user per window, shared by every
// instance. It fails open.
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
}

func NewRedisThrottle(client *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, window: window}
}

func (r *RedisThrottle) Allow(ctx context.Context, userID string) bool {
	ok, err := r.client.SetNX(ctx, "presence:touch:"+userID, 1, r.window).Result()
	if err != nil {
		logger.L().Warnw("presence throttle unavailable", "user", userID, "error", err)
		return true
	}
	return ok
}

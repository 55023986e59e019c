package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisThrottleAdmitsOncePerWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	throttle := NewRedisThrottle(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 30*time.Second)

	assert.True(t, throttle.Allow(ctx, "u1"))
	assert.False(t, throttle.Allow(ctx, "u1"))
	assert.True(t, throttle.Allow(ctx, "u2"))

	mr.FastForward(31 * time.Second)
	assert.True(t, throttle.Allow(ctx, "u1"))
}

func TestRedisThrottleFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	throttle := NewRedisThrottle(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 30*time.Second)
	mr.Close()

	assert.True(t, throttle.Allow(context.Background(), "u1"))
}

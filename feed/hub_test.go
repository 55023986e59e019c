package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	hub := NewHub()
	calls := make(chan struct{}, 4)

	unsubscribe := hub.Subscribe("messages:c1", func() { calls <- struct{}{} })
	defer unsubscribe()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("no initial delivery")
	}
}

func TestPublishSignalsOnlyMatchingTopic(t *testing.T) {
	hub := NewHub()
	var a, b atomic.Int32

	defer hub.Subscribe("a", func() { a.Add(1) })()
	defer hub.Subscribe("b", func() { b.Add(1) })()

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), "a")
	require.Eventually(t, func() bool { return a.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), b.Load())
}

func TestSignalsCoalesceWhileRunning(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	var runs atomic.Int32

	defer hub.Subscribe("t", func() {
		if runs.Add(1) == 1 {
			<-release
		}
	})()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		hub.Publish(context.Background(), "t")
	}
	close(release)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	var runs atomic.Int32

	unsubscribe := hub.Subscribe("t", func() { runs.Add(1) })
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Subscribers("t"))

	hub.Publish(context.Background(), "t")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestRedisBridgeFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := NewHub().WithBridge(NewRedisBridge(client, "feed"))
	reader := NewHub().WithBridge(NewRedisBridge(client, "feed"))
	require.NoError(t, writer.Start(ctx))
	require.NoError(t, reader.Start(ctx))

	var runs atomic.Int32
	defer reader.Subscribe("presence:u1", func() { runs.Add(1) })()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	writer.Publish(ctx, "presence:u1")
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

type brokenBridge struct {
	published atomic.Int32
}

func (b *brokenBridge) Publish(context.Context, string) error {
	b.published.Add(1)
	return nil
}

func (b *brokenBridge) Listen(context.Context, func(string)) error {
	return errors.New("connection refused")
}

func TestPublishStaysLocalWhenBridgeCannotListen(t *testing.T) {
	bridge := &brokenBridge{}
	hub := NewHub().WithBridge(bridge)

	var runs atomic.Int32
	defer hub.Subscribe("chatlist:u1", func() { runs.Add(1) })()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// before Start confirms, publishes are local
	hub.Publish(context.Background(), "chatlist:u1")
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.Error(t, hub.Start(context.Background()))

	hub.Publish(context.Background(), "chatlist:u1")
	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, bridge.published.Load())
}

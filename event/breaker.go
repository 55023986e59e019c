package event

import (
	"context"
	"time"

	"messenger-sync/logger"

	"github.com/sony/gobreaker"
)

// Breaker stops calling a failing broker for a while instead of stalling
// every write path on its timeout.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

func WithBreaker(next Publisher, maxFailures uint32, timeout time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.L().Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Publish(ctx context.Context, action string, body []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, action, body)
	})
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Close() error {
	return b.next.Close()
}

// Package feed is the change notification channel between the stores and
// their subscribers. Writers publish topics after a commit; every subscription
// of a topic is signalled and re-reads its snapshot.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"messenger-sync/logger"
	"messenger-sync/metrics"
)

// Bridge carries published topics between service instances.
type Bridge interface {
	Publish(ctx context.Context, topic string) error
	Listen(ctx context.Context, deliver func(topic string)) error
}

type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}
	bridge Bridge
	// bridged is set once the bridge listener is confirmed. Until then
	// publishes are delivered locally.
	bridged atomic.Bool
}

type subscription struct {
	fn     func()
	signal chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*subscription]struct{})}
}

// WithBridge routes publishes through b once Start has confirmed the
// listener.
func (h *Hub) WithBridge(b Bridge) *Hub {
	h.bridge = b
	return h
}

// Start subscribes to the bridge and returns once the subscription is
// confirmed; delivery continues until ctx is done. Without a bridge, or when
// the bridge cannot listen, the hub keeps delivering locally.
func (h *Hub) Start(ctx context.Context) error {
	if h.bridge == nil {
		return nil
	}
	err := h.bridge.Listen(ctx, func(topic string) {
		h.Dispatch(topic)
	})
	if err != nil {
		return err
	}
	h.bridged.Store(true)
	return nil
}

// Subscribe runs fn once right away and again after every publish of topic.
// Signals arriving while fn runs are coalesced into one more run.
func (h *Hub) Subscribe(topic string, fn func()) (unsubscribe func()) {
	s := &subscription{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		h.topics[topic] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	metrics.FeedSubscriptions.Inc()

	s.notify()
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.topics[topic]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			s.stop()
			metrics.FeedSubscriptions.Dec()
		})
	}
}

// Publish announces a change of every topic, across instances when a bridge
// is configured.
func (h *Hub) Publish(ctx context.Context, topics ...string) {
	if h.bridge == nil || !h.bridged.Load() {
		h.Dispatch(topics...)
		return
	}
	for _, topic := range topics {
		if err := h.bridge.Publish(ctx, topic); err != nil {
			logger.L().Warnw("feed bridge publish failed, delivering locally", "topic", topic, "error", err)
			h.Dispatch(topic)
		}
	}
}

// Dispatch signals local subscriptions only.
func (h *Hub) Dispatch(topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, topic := range topics {
		for s := range h.topics[topic] {
			s.notify()
		}
	}
}

// Subscribers reports the local subscription count of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			s.fn()
		}
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

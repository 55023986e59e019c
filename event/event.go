// Package event carries domain events to the message bus and profile seeds
// back from it.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"messenger-sync/logger"
	"messenger-sync/metrics"
)

const ActionHeader string = "x-action"

// Outbound actions.
const (
	ContactAdded   = "contact.added"
	ContactRenamed = "contact.renamed"
	ContactDeleted = "contact.deleted"
	ChatCleared    = "chat.cleared"
	MessageSent    = "message.sent"
	ChatRead       = "chat.read"
)

// IdentityUpsert is the inbound action carrying a user profile.
const IdentityUpsert = "identity.upsert"

const emitTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, action string, body []byte) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }

// Emitter publishes events after a commit. Failures are logged and counted,
// never returned: the write they describe has already happened.
type Emitter struct {
	publisher Publisher
	journal   *Journal

	mu      sync.RWMutex
	queue   chan envelope
	closed  bool
	drained chan struct{}
}

type envelope struct {
	action string
	body   []byte
}

func NewEmitter(publisher Publisher, journal *Journal) *Emitter {
	if publisher == nil {
		publisher = Nop{}
	}
	return &Emitter{publisher: publisher, journal: journal}
}

// Async moves publishing onto a background worker fed by a queue of size
// buffer, so a slow broker does not hold up the write path. Events that do
// not fit are dropped and counted. Close drains the queue.
func (e *Emitter) Async(buffer int) *Emitter {
	if buffer < 1 {
		buffer = 1
	}
	e.queue = make(chan envelope, buffer)
	e.drained = make(chan struct{})
	go func() {
		defer close(e.drained)
		for env := range e.queue {
			e.publish(env.action, env.body)
		}
	}()
	return e
}

// Emit is safe on a nil Emitter.
func (e *Emitter) Emit(action string, payload interface{}) {
	if e == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.L().Errorw("event encode failed", "action", action, "error", err)
		return
	}

	if e.queue == nil {
		e.publish(action, body)
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.EventsPublished.WithLabelValues(action, "dropped").Inc()
		return
	}
	select {
	case e.queue <- envelope{action: action, body: body}:
	default:
		metrics.EventsPublished.WithLabelValues(action, "dropped").Inc()
		logger.L().Warnw("event queue full, dropping event", "action", action)
	}
}

func (e *Emitter) publish(action string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, action, body); err != nil {
		metrics.EventsPublished.WithLabelValues(action, "failed").Inc()
		logger.L().Warnw("event publish failed", "action", action, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(action, "published").Inc()

	if e.journal != nil {
		if err := e.journal.Write(action, body); err != nil {
			logger.L().Warnw("event journal write failed", "action", action, "error", err)
		}
	}
}

// Replay republishes every journaled entry through the emitter's publisher
// without journaling it again.
func (e *Emitter) Replay(ctx context.Context, path string) (int, error) {
	count := 0
	err := ReadJournal(path, func(entry LogData) error {
		if err := e.publisher.Publish(ctx, entry.Action, []byte(entry.Data)); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// Close publishes whatever is still queued, then closes the journal and the
// publisher.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	if e.queue != nil {
		e.mu.Lock()
		if !e.closed {
			e.closed = true
			close(e.queue)
		}
		e.mu.Unlock()
		<-e.drained
	}
	if e.journal != nil {
		_ = e.journal.Close()
	}
	return e.publisher.Close()
}

package event

import (
	"context"
	"fmt"
	"sync"

	"messenger-sync/config"
	"messenger-sync/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

type EventChannelData struct {
	Action string
	Data   []byte
}

type RabbitMQSubscribeListener struct {
	Queue   string
	Channel chan EventChannelData
}

type RabbitMQ struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      string

	// amqp channels must not be published on concurrently
	mu sync.Mutex
}

// RabbitMQConnect dials the broker, declares queues and publishes events to
// RABBITMQ_EVENTS_QUEUE.
func RabbitMQConnect(queues []string) (*RabbitMQ, error) {
	connection, err := amqp.Dial(fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		config.Config("RABBITMQ_USER"),
		config.Config("RABBITMQ_PASSWORD"),
		config.Config("RABBITMQ_HOST"),
		config.Config("RABBITMQ_PORT"),
	))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	logger.L().Info("connection opened to RabbitMQ server")

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	r := &RabbitMQ{
		connection: connection,
		channel:    channel,
		queue:      config.Config("RABBITMQ_EVENTS_QUEUE"),
	}

	for _, name := range append([]string{r.queue}, queues...) {
		if _, err := channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			r.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
		logger.L().Infow("declared RabbitMQ queue", "queue", name)
	}

	return r, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, action string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.PublishWithContext(
		ctx,
		"",      // exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				ActionHeader: action,
			},
			Body: body,
		},
	)
}

// Subscribe forwards every delivery of each queue to its listener channel.
// Messages without an action header are rejected.
func (r *RabbitMQ) Subscribe(listeners []RabbitMQSubscribeListener) error {
	for _, listener := range listeners {
		msgs, err := r.channel.Consume(
			listener.Queue, // queue
			"",             // consumer
			false,          // auto-ack
			false,          // exclusive
			false,          // no-local
			false,          // no-wait
			nil,            // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", listener.Queue, err)
		}
		logger.L().Infow("subscribed to RabbitMQ queue", "queue", listener.Queue)

		go func(listener RabbitMQSubscribeListener) {
			for msg := range msgs {
				action, ok := msg.Headers[ActionHeader].(string)
				if !ok {
					logger.L().Warnw("dropping message without action", "queue", listener.Queue)
					_ = msg.Nack(false, false)
					continue
				}

				listener.Channel <- EventChannelData{Action: action, Data: msg.Body}
				_ = msg.Ack(false)
			}
			close(listener.Channel)
		}(listener)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}

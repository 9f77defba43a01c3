package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

const ordersStream = "ORDERS-STREAM"

// EventBus is the JetStream-backed event channel. Delivery is at-least-once
// (manual acks) and ordered per key.
type EventBus struct {
	log *slog.Logger
	js  nats.JetStreamContext
}

func New(nc *nats.Conn, log *slog.Logger) (*EventBus, error) {
	const op = "nats.New"

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     ordersStream,
		Subjects: []string{"orders.>"},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: add stream: %w", op, err)
	}

	log.Info("connected to orders stream", "stream", ordersStream)
	return &EventBus{log: log, js: js}, nil
}

func (b *EventBus) Publish(ctx context.Context, topic, key string, data []byte) error {
	const op = "nats.Publish"

	subject := topic + "." + key
	if _, err := b.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		b.log.Error("failed to publish event", "op", op, "subject", subject, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	b.log.Debug("event published", "subject", subject)
	return nil
}

// Subscribe registers a durable consumer for the topic. The handler gets the
// per-order key and the raw payload; returning nil acks the message, an
// error leaves it for redelivery.
func (b *EventBus) Subscribe(topic string, handler func(key string, data []byte) error) error {
	const op = "nats.Subscribe"

	prefix := topic + "."
	_, err := b.js.Subscribe(topic+".*", func(msg *nats.Msg) {
		key := strings.TrimPrefix(msg.Subject, prefix)
		if err := handler(key, msg.Data); err != nil {
			b.log.Error("event handler failed, message left for redelivery",
				"op", op, "subject", msg.Subject, "err", err)
			return
		}
		if err := msg.Ack(); err != nil {
			b.log.Error("failed to ack message", "op", op, "subject", msg.Subject, "err", err)
		}
	}, nats.Durable(durableName(topic)), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	b.log.Info("subscribed to topic", "topic", topic)
	return nil
}

func durableName(topic string) string {
	return "PIPELINE_" + strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

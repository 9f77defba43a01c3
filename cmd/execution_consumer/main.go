package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/domain/models"

	"github.com/nats-io/nats.go"
)

// execution_consumer tails the orders execution topic. It is the template
// for downstream settlement consumers: durable, manual acks, at-least-once.
func main() {
	cfg := config.MustLoad()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	nc, err := nats.Connect(cfg.NatsCfg.URL)
	if err != nil {
		log.Error("execution consumer nats.Connect err", "error", err)
		panic(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("execution consumer jetstream creating err", "error", err)
		panic(err)
	}

	_, err = js.Subscribe(models.TopicExecution+".*", func(msg *nats.Msg) {
		var evt models.ExecutionEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Error("failed to unmarshal execution event", "subject", msg.Subject, "err", err)
			// Poison message, ack it away.
			_ = msg.Ack()
			return
		}

		log.Info("execution",
			"order_id", evt.OrderId,
			"symbol", evt.Symbol,
			"side", evt.Side,
			"filled_quantity", evt.FilledQuantity,
			"fill_price", evt.FillPrice,
			"status", evt.Status,
		)

		if err := msg.Ack(); err != nil {
			log.Error("failed to ack execution event", "subject", msg.Subject, "err", err)
		}
	}, nats.Durable("EXECUTION_PROCESSOR"), nats.ManualAck())
	if err != nil {
		log.Error("execution consumer subscribe err", "error", err)
		panic(err)
	}

	log.Info("execution consumer started", "topic", models.TopicExecution)
	select {}
}

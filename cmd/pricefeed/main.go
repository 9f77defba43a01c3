package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/http_client"
	"OrderPipeline/internal/storage/redis"

	"github.com/nats-io/nats.go"
)

// pricefeed polls the exchange ticker endpoint, refreshes the redis price
// cache and republishes every tick on the prices stream.
func main() {
	cfg := config.MustLoad()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("starting pricefeed", "streams", cfg.BinanceConfig.Streams)

	priceClient := http_client.New(cfg.BinanceConfig, log)
	redisClient := redis.New(cfg.RedisCfg)

	nc, err := nats.Connect(cfg.NatsCfg.URL)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		panic(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("failed to init jetstream", "error", err)
		panic(err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "PRICES-STREAM",
		Subjects: []string{"prices.*"},
	})
	if err != nil {
		log.Error("failed to add prices stream", "error", err)
		panic(err)
	}

	ctx := context.Background()
	interval := cfg.BinanceConfig.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	const topicPart = "prices."
	for {
		prices, err := priceClient.GetPrice()
		if err != nil {
			log.Error("failed to fetch prices", "error", err)
			time.Sleep(interval)
			continue
		}

		if err := redisClient.SavePrices(ctx, prices); err != nil {
			log.Error("failed to cache prices", "error", err)
		}

		for _, priceResp := range prices {
			topic := topicPart + priceResp.Symbol
			if _, err := js.Publish(topic, []byte(priceResp.Price)); err != nil {
				log.Error("failed to publish price", "topic", topic, "err", err)
			}
		}

		time.Sleep(interval)
	}
}

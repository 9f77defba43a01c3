package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/domain/models"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const pricePrefix = "pipeline:marketdata:price"

// priceLookupTimeout bounds how long a single price read may block a caller.
const priceLookupTimeout = 500 * time.Millisecond

// Redis is the market-data price cache: written by the pricefeed binary,
// read by the pipeline for risk snapshots and fills.
type Redis struct {
	client *redis.Client
}

func New(redisConfig config.RedisConfig) *Redis {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.Db,
	})

	return &Redis{client: redisClient}
}

func (s *Redis) SavePrices(ctx context.Context, prices []models.PriceResponse) error {
	log := slog.With("method", "SavePrices")
	pipe := s.client.Pipeline()

	for _, priceResp := range prices {
		key := fmt.Sprintf("%s:%s", pricePrefix, priceResp.Symbol)
		value, _ := json.Marshal(priceResp.Price)
		pipe.Set(ctx, key, value, 10*time.Minute)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error("failed to save prices", "err", err)
		return fmt.Errorf("failed to save prices: %w", err)
	}

	return nil
}

func (s *Redis) GetPrice(ctx context.Context, ticker string) (string, error) {
	log := slog.With("method", "GetPrice")

	tickerRedis := ticker
	if strings.Contains(ticker, "/") {
		parts := strings.Split(ticker, "/")
		if len(parts) != 2 {
			return "", fmt.Errorf("invalid ticker: %s", ticker)
		}
		tickerRedis = parts[0] + parts[1]
	}

	data, err := s.client.Get(ctx, pricePrefix+":"+tickerRedis).Result()
	if err != nil {
		log.Error("failed to get price", "ticker", ticker, "err", err)
		return "", fmt.Errorf("failed to get price: %w", err)
	}
	var price string
	err = json.Unmarshal([]byte(data), &price)
	if err != nil {
		log.Error("failed to unmarshal price", "data", data, "err", err)
		return "", fmt.Errorf("failed to unmarshal price: %w", err)
	}

	return price, nil
}

// GetCurrentPrice is the price-lookup contract consumed by the coordinator
// and the risk endpoints. The read is bounded so a slow cache cannot stall
// an order instance.
func (s *Redis) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "redis.GetCurrentPrice"

	ctx, cancel := context.WithTimeout(ctx, priceLookupTimeout)
	defer cancel()

	raw, err := s.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: parse %q: %w", op, raw, err)
	}

	return price, nil
}

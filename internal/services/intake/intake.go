package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"
	"OrderPipeline/internal/idempotency"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrDownstreamUnavailable = errors.New("failed to hand the order off, retry with the same key")
)

var symbolPattern = regexp.MustCompile(`^[A-Z]+/[A-Z]+$`)

var (
	maxQuantity = decimal.NewFromInt(1_000_000)
	maxPrice    = decimal.NewFromInt(1_000_000_000)
)

// ValidationError carries per-field messages for a malformed placement
// request. No order is created when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid place order request: %d invalid fields", len(e.Fields))
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (transport.OrderResponse, bool, error)
	Set(ctx context.Context, key string, resp transport.OrderResponse, ttl time.Duration) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, data []byte) error
}

// keyedMutex serializes work per idempotency key. Entries are refcounted and
// dropped when the last holder releases, so idle keys hold no memory.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyEntry)}
}

func (km *keyedMutex) lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &keyEntry{}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()
	e.mu.Lock()
}

func (km *keyedMutex) unlock(key string) {
	km.mu.Lock()
	e := km.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()
	e.mu.Unlock()
}

// Intake validates and deduplicates placement requests and hands accepted
// ones to the coordinator over the event channel.
type Intake struct {
	log  *slog.Logger
	idem IdempotencyStore
	bus  Publisher
	keys *keyedMutex
	now  func() time.Time
}

func New(log *slog.Logger, idem IdempotencyStore, bus Publisher) *Intake {
	return &Intake{
		log:  log,
		idem: idem,
		bus:  bus,
		keys: newKeyedMutex(),
		now:  time.Now,
	}
}

func (i *Intake) PlaceOrder(ctx context.Context, req transport.PlaceOrderRequest, idempotencyKey string) (transport.OrderResponse, error) {
	const op = "intake.PlaceOrder"
	log := i.log.With("op", op)

	if idempotencyKey == "" {
		log.Warn("placement request without idempotency key", "user_id", req.UserId)
		return transport.OrderResponse{}, fmt.Errorf("%s: %w", op, ErrMissingIdempotencyKey)
	}

	if err := validateRequest(req); err != nil {
		log.Info("placement request rejected", "user_id", req.UserId, "err", err)
		return transport.OrderResponse{}, err
	}

	// The lookup, publish and cache write below must be one atomic step per
	// key, or two concurrent calls with the same key would both miss the
	// lookup and mint two orders.
	i.keys.lock(idempotencyKey)
	defer i.keys.unlock(idempotencyKey)

	// The dedup lookup has to come before any side effect.
	if cached, ok, err := i.idem.Get(ctx, idempotencyKey); err != nil {
		log.Error("idempotency lookup failed", "key", idempotencyKey, "err", err)
		return transport.OrderResponse{}, fmt.Errorf("%s: %w", op, ErrDownstreamUnavailable)
	} else if ok {
		log.Info("duplicate placement request, replaying cached response",
			"key", idempotencyKey, "order_id", cached.OrderId)
		return cached, nil
	}

	orderId := uuid.New()
	createdAt := i.now().UTC()

	evt := models.OrderCreatedEvent{
		OrderId:        orderId,
		UserId:         req.UserId,
		Symbol:         req.Symbol,
		Side:           req.Side,
		OrderType:      req.OrderType,
		Quantity:       req.Quantity,
		Price:          req.Price,
		IdempotencyKey: idempotencyKey,
		Timestamp:      createdAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error("failed to marshal order created event", "order_id", orderId, "err", err)
		return transport.OrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := i.bus.Publish(ctx, models.TopicOrderCreated, orderId.String(), data); err != nil {
		// Nothing was cached, so the client can retry with the same key.
		log.Error("failed to publish order created event", "order_id", orderId, "err", err)
		return transport.OrderResponse{}, fmt.Errorf("%s: %w", op, ErrDownstreamUnavailable)
	}

	resp := transport.OrderResponse{
		OrderId:   orderId,
		Status:    models.StatusAccepted,
		Symbol:    req.Symbol,
		Side:      req.Side,
		OrderType: req.OrderType,
		Quantity:  req.Quantity,
		Price:     req.Price,
		CreatedAt: createdAt,
	}

	// Best effort: a failed cache write must not fail a placed order.
	if err := i.idem.Set(ctx, idempotencyKey, resp, idempotency.DefaultTTL); err != nil {
		log.Error("failed to cache placement response", "key", idempotencyKey, "err", err)
	}

	log.Info("order placed", "order_id", orderId, "symbol", req.Symbol,
		"side", req.Side, "quantity", req.Quantity)
	return resp, nil
}

func validateRequest(req transport.PlaceOrderRequest) error {
	fields := make(map[string]string)

	if req.UserId == "" {
		fields["userId"] = "userId is required"
	}
	if !symbolPattern.MatchString(req.Symbol) {
		fields["symbol"] = "symbol must be in format BASE/QUOTE (e.g. BTC/USD)"
	}
	if !req.Side.Valid() {
		fields["side"] = "side must be either BUY or SELL"
	}
	if !req.OrderType.Valid() {
		fields["orderType"] = "orderType must be either MARKET or LIMIT"
	}
	if !req.Quantity.IsPositive() {
		fields["quantity"] = "quantity must be greater than zero"
	} else if req.Quantity.GreaterThan(maxQuantity) {
		fields["quantity"] = "quantity exceeds maximum allowed value"
	}
	if req.OrderType == models.Limit {
		switch {
		case req.Price == nil || !req.Price.IsPositive():
			fields["price"] = "price is required and must be greater than zero for LIMIT orders"
		case req.Price.GreaterThan(maxPrice):
			fields["price"] = "price exceeds maximum allowed value"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

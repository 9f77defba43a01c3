package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/storage/postgres"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInboxFull      = errors.New("order inbox is full")
	ErrNotFillable    = errors.New("order is not in a fillable state")
	ErrNotCancellable = errors.New("order is not in a cancellable state")
	ErrInvalidFillQty = errors.New("fill quantity must be positive")
)

type RiskValidator interface {
	Validate(ctx context.Context, req models.RiskValidationRequest) (models.RiskValidationResult, error)
}

type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type PositionLedger interface {
	ApplyFill(ctx context.Context, userId, symbol string, delta, fillPrice decimal.Decimal) (models.Position, error)
}

type OrderStore interface {
	SaveOrder(ctx context.Context, order models.Order) error
	UpdateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, data []byte) error
}

// Manager routes every message for an order to that order's single
// instance, so all mutations of one order are strictly sequential while
// distinct orders run in parallel.
type Manager struct {
	log    *slog.Logger
	cfg    config.CoordinatorConfig
	risk   RiskValidator
	prices PriceSource
	ledger PositionLedger
	store  OrderStore
	bus    Publisher

	mu        sync.Mutex
	instances map[uuid.UUID]*instance
}

func New(
	log *slog.Logger,
	cfg config.CoordinatorConfig,
	risk RiskValidator,
	prices PriceSource,
	ledger PositionLedger,
	store OrderStore,
	bus Publisher,
) *Manager {
	return &Manager{
		log:       log,
		cfg:       cfg,
		risk:      risk,
		prices:    prices,
		ledger:    ledger,
		store:     store,
		bus:       bus,
		instances: make(map[uuid.UUID]*instance),
	}
}

// getOrCreate spawns the order's instance if it is not running. Keying by
// OrderId makes attach idempotent under event redelivery.
func (m *Manager) getOrCreate(id uuid.UUID) *instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[id]; ok {
		return inst
	}

	inst := newInstance(id, m)
	m.instances[id] = inst
	go inst.run()
	return inst
}

func (m *Manager) retire(inst *instance) {
	m.mu.Lock()
	delete(m.instances, inst.id)
	m.mu.Unlock()
	inst.markClosed()
}

// HandleOrderCreated is the event-channel entry point for the
// orders.created topic. A non-nil return leaves the message unacked for
// redelivery.
func (m *Manager) HandleOrderCreated(key string, data []byte) error {
	const op = "coordinator.HandleOrderCreated"

	var evt models.OrderCreatedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		m.log.Error("failed to unmarshal order created event", "op", op, "key", key, "err", err)
		// A poison message will never parse; dropping it beats redelivering forever.
		return nil
	}

	inst := m.getOrCreate(evt.OrderId)
	done := make(chan error, 1)
	if err := inst.trySend(createdMsg{evt: evt, done: done}); err != nil {
		if errors.Is(err, errInstanceClosed) {
			// Redelivery after the order went terminal: safe to ack.
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Ack only after the order is persisted; a crash before that is
	// recovered by replaying this message.
	if err := <-done; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Cancel requests cancellation of the order. On an already-terminal order
// it is a no-op returning the terminal status.
func (m *Manager) Cancel(ctx context.Context, orderId uuid.UUID) (models.OrderStatus, error) {
	const op = "coordinator.Cancel"

	for {
		inst := m.getOrCreate(orderId)
		reply := make(chan statusReply, 1)
		if err := inst.trySend(cancelMsg{reply: reply}); err != nil {
			if errors.Is(err, errInstanceClosed) {
				// Lost the race with retirement, the next attach reloads
				// the persisted terminal state.
				continue
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}

		select {
		case r := <-reply:
			if r.err != nil {
				return "", fmt.Errorf("%s: %w", op, r.err)
			}
			return r.status, nil
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
}

// Fill applies an external execution to a resting LIMIT order.
func (m *Manager) Fill(ctx context.Context, orderId uuid.UUID, quantity, price decimal.Decimal) (models.OrderStatus, error) {
	const op = "coordinator.Fill"

	if !quantity.IsPositive() {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidFillQty)
	}

	for {
		inst := m.getOrCreate(orderId)
		reply := make(chan statusReply, 1)
		if err := inst.trySend(fillMsg{quantity: quantity, price: price, reply: reply}); err != nil {
			if errors.Is(err, errInstanceClosed) {
				continue
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}

		select {
		case r := <-reply:
			if r.err != nil {
				return "", fmt.Errorf("%s: %w", op, r.err)
			}
			return r.status, nil
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
}

// GetOrder reads the persisted order record.
func (m *Manager) GetOrder(ctx context.Context, orderId uuid.UUID) (models.Order, error) {
	return m.store.GetOrder(ctx, orderId)
}

func (m *Manager) publish(topic string, orderId uuid.UUID, payload any) {
	const op = "coordinator.publish"

	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error("failed to marshal event", "op", op, "topic", topic, "order_id", orderId, "err", err)
		return
	}
	if err := m.bus.Publish(context.Background(), topic, orderId.String(), data); err != nil {
		m.log.Error("failed to publish event", "op", op, "topic", topic, "order_id", orderId, "err", err)
	}
}

// persist writes the order with bounded retries. The caller decides what a
// final failure means for the order's state.
func (m *Manager) persist(ctx context.Context, order models.Order, isNew bool) error {
	const op = "coordinator.persist"

	retries := m.cfg.PersistRetries
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		if isNew {
			err = m.store.SaveOrder(ctx, order)
		} else {
			err = m.store.UpdateOrder(ctx, order)
		}
		if err == nil {
			return nil
		}
	}

	m.log.Error("failed to persist order after retries",
		"op", op, "order_id", order.Id, "status", order.Status, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, postgres.ErrOrderNotExists)
}

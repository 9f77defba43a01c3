package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errInstanceClosed = errors.New("order instance is closed")

const inboxSize = 128

type message interface{ isCoordinatorMessage() }

type statusReply struct {
	status models.OrderStatus
	err    error
}

type createdMsg struct {
	evt  models.OrderCreatedEvent
	done chan error
}

type fillMsg struct {
	quantity decimal.Decimal
	price    decimal.Decimal
	reply    chan statusReply // nil for the coordinator's own simulated fills
}

type cancelMsg struct {
	reply chan statusReply
}

func (createdMsg) isCoordinatorMessage() {}
func (fillMsg) isCoordinatorMessage()    {}
func (cancelMsg) isCoordinatorMessage()  {}

// instance is the single-writer state machine for one order. Its inbox is
// the serialization boundary: messages are handled strictly in arrival
// order by one goroutine.
type instance struct {
	id uuid.UUID
	m  *Manager

	mu     sync.Mutex
	closed bool
	inbox  chan message

	// Only the run goroutine touches these.
	order  models.Order
	loaded bool
}

func newInstance(id uuid.UUID, m *Manager) *instance {
	return &instance{
		id:    id,
		m:     m,
		inbox: make(chan message, inboxSize),
	}
}

func (i *instance) trySend(msg message) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return errInstanceClosed
	}
	select {
	case i.inbox <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

func (i *instance) markClosed() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}
	i.closed = true
	close(i.inbox)
}

func (i *instance) run() {
	for msg := range i.inbox {
		i.handle(msg)
	}
}

func (i *instance) handle(msg message) {
	defer func() {
		if r := recover(); r != nil {
			i.m.log.Error("panic in order instance", "order_id", i.id, "panic", r)
			if i.loaded && !i.order.Status.Terminal() {
				i.reject(context.Background(), "internal error")
			}
		}
	}()

	switch msg := msg.(type) {
	case createdMsg:
		i.handleCreated(msg)
	case fillMsg:
		i.handleFill(msg)
	case cancelMsg:
		i.handleCancel(msg)
	}
}

func (i *instance) ensureLoaded(ctx context.Context) error {
	if i.loaded {
		return nil
	}
	order, err := i.m.store.GetOrder(ctx, i.id)
	if err != nil {
		return err
	}
	i.order = order
	i.loaded = true
	return nil
}

func (i *instance) handleCreated(msg createdMsg) {
	const op = "coordinator.handleCreated"
	ctx := context.Background()
	log := i.m.log.With("op", op, "order_id", i.id)

	signal := func(err error) {
		if msg.done != nil {
			msg.done <- err
		}
	}

	if i.loaded {
		// Redelivered event for a live instance. If a cancel or fill
		// attached this instance before validation finished, the replayed
		// event finishes it now.
		log.Debug("duplicate order created event")
		signal(nil)
		if i.order.Status == models.StatusNew || i.order.Status == models.StatusAwaitingRisk {
			i.runRiskValidation(ctx)
		}
		return
	}

	existing, err := i.m.store.GetOrder(ctx, i.id)
	switch {
	case err == nil:
		// Replay after a crash or redelivery: attach to persisted state.
		i.order = existing
		i.loaded = true
		signal(nil)
		if existing.Status.Terminal() {
			i.m.retire(i)
			return
		}
		if existing.Status == models.StatusNew || existing.Status == models.StatusAwaitingRisk {
			i.runRiskValidation(ctx)
		}
		return
	case !isNotFound(err):
		log.Error("failed to check for existing order", "err", err)
		signal(err)
		return
	}

	evt := msg.evt
	i.order = models.Order{
		Id:             evt.OrderId,
		UserId:         evt.UserId,
		Symbol:         evt.Symbol,
		Side:           evt.Side,
		Type:           evt.OrderType,
		Quantity:       evt.Quantity,
		Price:          evt.Price,
		IdempotencyKey: evt.IdempotencyKey,
		Status:         models.StatusNew,
		FilledQuantity: decimal.Zero,
		CreatedAt:      evt.Timestamp,
		UpdatedAt:      evt.Timestamp,
	}

	if err := i.m.persist(ctx, i.order, true); err != nil {
		// Not loaded, so the redelivered event retries from scratch.
		i.order = models.Order{}
		signal(err)
		return
	}
	i.loaded = true
	signal(nil)

	log.Info("order created", "symbol", evt.Symbol, "side", evt.Side, "quantity", evt.Quantity)
	i.runRiskValidation(ctx)
}

func (i *instance) runRiskValidation(ctx context.Context) {
	const op = "coordinator.runRiskValidation"
	log := i.m.log.With("op", op, "order_id", i.id)

	if i.order.Status == models.StatusNew {
		i.transition(ctx, models.StatusAwaitingRisk)
	}

	currentPrice, err := i.m.prices.GetCurrentPrice(ctx, i.order.Symbol)
	if err != nil {
		log.Error("market price unavailable", "symbol", i.order.Symbol, "err", err)
		i.publishRiskValidated(false, "market price unavailable")
		i.reject(ctx, "market price unavailable")
		return
	}

	req := models.RiskValidationRequest{
		OrderId:      i.order.Id,
		UserId:       i.order.UserId,
		Symbol:       i.order.Symbol,
		Side:         i.order.Side,
		OrderType:    i.order.Type,
		Quantity:     i.order.Quantity,
		Price:        i.order.Price,
		CurrentPrice: currentPrice,
	}

	riskCtx, cancel := context.WithTimeout(ctx, i.m.cfg.RiskTimeout)
	defer cancel()

	type validateResult struct {
		result models.RiskValidationResult
		err    error
	}
	resultCh := make(chan validateResult, 1)
	go func() {
		result, err := i.m.risk.Validate(riskCtx, req)
		resultCh <- validateResult{result: result, err: err}
	}()

	select {
	case <-riskCtx.Done():
		// Fail closed: no retry, no approval on ambiguity.
		log.Error("risk validation timed out", "timeout", i.m.cfg.RiskTimeout)
		i.publishRiskValidated(false, "risk validation timeout")
		i.reject(ctx, "risk validation timeout")
		return
	case r := <-resultCh:
		if r.err != nil {
			log.Error("risk validation call failed", "err", r.err)
			i.publishRiskValidated(false, "risk validation unavailable")
			i.reject(ctx, "risk validation unavailable")
			return
		}
		i.publishRiskValidated(r.result.Approved, r.result.Reason)
		if !r.result.Approved {
			log.Info("order rejected by risk", "reason", r.result.Reason,
				"failed_checks", r.result.FailedChecks)
			i.reject(ctx, r.result.Reason)
			return
		}
	}

	i.transition(ctx, models.StatusAccepted)
	log.Info("order accepted", "symbol", i.order.Symbol)

	if i.order.Type == models.Market {
		i.scheduleMarketFill(currentPrice)
	}
}

// scheduleMarketFill simulates the exchange filling a MARKET order. The
// fill goes through the instance's own inbox so it cannot race a
// cancellation.
func (i *instance) scheduleMarketFill(price decimal.Decimal) {
	quantity := i.order.Quantity
	time.AfterFunc(i.m.cfg.MarketFillDelay, func() {
		if err := i.trySend(fillMsg{quantity: quantity, price: price}); err != nil {
			i.m.log.Debug("simulated fill dropped", "order_id", i.id, "err", err)
		}
	})
}

func (i *instance) handleFill(msg fillMsg) {
	const op = "coordinator.handleFill"
	ctx := context.Background()
	log := i.m.log.With("op", op, "order_id", i.id)

	reply := func(r statusReply) {
		if msg.reply != nil {
			msg.reply <- r
		}
	}

	if err := i.ensureLoaded(ctx); err != nil {
		reply(statusReply{err: err})
		if isNotFound(err) {
			i.m.retire(i)
		}
		return
	}

	if i.order.Status.Terminal() {
		// A simulated fill can arrive after a cancel won the race.
		log.Debug("fill ignored, order already terminal", "status", i.order.Status)
		reply(statusReply{status: i.order.Status, err: ErrNotFillable})
		return
	}
	if i.order.Status != models.StatusAccepted && i.order.Status != models.StatusPartiallyFilled {
		reply(statusReply{status: i.order.Status, err: ErrNotFillable})
		return
	}

	fillQty := msg.quantity
	if remaining := i.order.Remaining(); fillQty.GreaterThan(remaining) {
		fillQty = remaining
	}

	i.order.FilledQuantity = i.order.FilledQuantity.Add(fillQty)
	price := msg.price
	i.order.FillPrice = &price
	if i.order.Remaining().IsZero() {
		i.order.Status = models.StatusFilled
	} else {
		i.order.Status = models.StatusPartiallyFilled
	}
	i.order.UpdatedAt = time.Now().UTC()

	delta := fillQty
	if i.order.Side == models.Sell {
		delta = delta.Neg()
	}
	if _, err := i.m.ledger.ApplyFill(ctx, i.order.UserId, i.order.Symbol, delta, msg.price); err != nil {
		log.Error("failed to apply fill to ledger", "err", err)
	}

	if err := i.m.persist(ctx, i.order, false); err != nil {
		log.Error("order fill not persisted, in-memory state stays ahead", "err", err)
	}

	i.m.publish(models.TopicExecution, i.id, models.ExecutionEvent{
		OrderId:        i.order.Id,
		Symbol:         i.order.Symbol,
		Side:           i.order.Side,
		FilledQuantity: i.order.FilledQuantity,
		FillPrice:      msg.price,
		Status:         i.order.Status,
		ExecutedAt:     i.order.UpdatedAt,
	})

	log.Info("order filled", "filled_quantity", i.order.FilledQuantity,
		"fill_price", msg.price, "status", i.order.Status)

	reply(statusReply{status: i.order.Status})
	if i.order.Status.Terminal() {
		i.m.retire(i)
	}
}

func (i *instance) handleCancel(msg cancelMsg) {
	const op = "coordinator.handleCancel"
	ctx := context.Background()
	log := i.m.log.With("op", op, "order_id", i.id)

	if err := i.ensureLoaded(ctx); err != nil {
		msg.reply <- statusReply{err: err}
		if isNotFound(err) {
			i.m.retire(i)
		}
		return
	}

	if i.order.Status.Terminal() {
		// Idempotent no-op.
		msg.reply <- statusReply{status: i.order.Status}
		return
	}
	if i.order.Status != models.StatusAccepted && i.order.Status != models.StatusPartiallyFilled {
		// Risk has not signed off yet. The replayed created event will
		// finish validation; the caller can retry after that.
		msg.reply <- statusReply{status: i.order.Status, err: ErrNotCancellable}
		return
	}

	i.order.Status = models.StatusCancelled
	i.order.UpdatedAt = time.Now().UTC()
	if err := i.m.persist(ctx, i.order, false); err != nil {
		msg.reply <- statusReply{err: err}
		return
	}

	log.Info("order cancelled", "remaining", i.order.Remaining())
	msg.reply <- statusReply{status: models.StatusCancelled}
	i.m.retire(i)
}

// transition persists a status change before the next message can be
// processed.
func (i *instance) transition(ctx context.Context, status models.OrderStatus) {
	i.order.Status = status
	i.order.UpdatedAt = time.Now().UTC()
	if err := i.m.persist(ctx, i.order, false); err != nil {
		i.m.log.Error("status transition not persisted",
			"order_id", i.id, "status", status, "err", err)
	}
}

func (i *instance) reject(ctx context.Context, reason string) {
	i.order.Status = models.StatusRejected
	i.order.RejectionReason = reason
	i.order.UpdatedAt = time.Now().UTC()
	if err := i.m.persist(ctx, i.order, false); err != nil {
		i.m.log.Error("rejection not persisted", "order_id", i.id, "err", err)
	}
	i.m.retire(i)
}

func (i *instance) publishRiskValidated(approved bool, reason string) {
	i.m.publish(models.TopicRiskValidated, i.id, models.RiskValidatedEvent{
		OrderId:     i.id,
		Approved:    approved,
		Reason:      reason,
		ValidatedAt: time.Now().UTC(),
	})
}

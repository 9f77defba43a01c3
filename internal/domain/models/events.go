package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics carried on the orders stream. The per-order key is appended as the
// last subject token so same-order events stay in publish order.
const (
	TopicOrderCreated  = "orders.created"
	TopicRiskValidated = "orders.risk"
	TopicExecution     = "orders.execution"
)

// Lifecycle events carried by the event channel. Each is keyed by OrderId
// so delivery stays ordered per order.

type OrderCreatedEvent struct {
	OrderId        uuid.UUID        `json:"orderId"`
	UserId         string           `json:"userId"`
	Symbol         string           `json:"symbol"`
	Side           OrderSide        `json:"side"`
	OrderType      OrderType        `json:"orderType"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	IdempotencyKey string           `json:"idempotencyKey"`
	Timestamp      time.Time        `json:"timestamp"`
}

type RiskValidatedEvent struct {
	OrderId     uuid.UUID `json:"orderId"`
	Approved    bool      `json:"approved"`
	Reason      string    `json:"reason,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

type ExecutionEvent struct {
	OrderId        uuid.UUID       `json:"orderId"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	FillPrice      decimal.Decimal `json:"fillPrice"`
	Status         OrderStatus     `json:"status"`
	ExecutedAt     time.Time       `json:"executedAt"`
}

// PriceResponse is the market-data feed payload cached in redis and
// published on the prices stream.
type PriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool {
	return t == Market || t == Limit
}

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusAwaitingRisk    OrderStatus = "AWAITING_RISK"
	StatusAccepted        OrderStatus = "ACCEPTED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusSettled         OrderStatus = "SETTLED"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFilled, StatusCancelled, StatusSettled:
		return true
	}
	return false
}

// Order is the full per-order record: immutable identity plus the
// mutable lifecycle projection owned by the order's coordinator instance.
type Order struct {
	Id             uuid.UUID
	UserId         string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Quantity       decimal.Decimal
	Price          *decimal.Decimal
	IdempotencyKey string

	Status          OrderStatus
	FilledQuantity  decimal.Decimal
	FillPrice       *decimal.Decimal
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining returns the unfilled part of the order quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

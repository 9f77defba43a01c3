package transport

import (
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PlaceOrderRequest struct {
	UserId    string           `json:"userId" validate:"required"`
	Symbol    string           `json:"symbol" validate:"required"`
	Side      models.OrderSide `json:"side" validate:"required,oneof=BUY SELL"`
	OrderType models.OrderType `json:"orderType" validate:"required,oneof=MARKET LIMIT"`
	Quantity  decimal.Decimal  `json:"quantity" validate:"required"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type OrderResponse struct {
	OrderId   uuid.UUID          `json:"orderId"`
	Status    models.OrderStatus `json:"status"`
	Symbol    string             `json:"symbol"`
	Side      models.OrderSide   `json:"side"`
	OrderType models.OrderType   `json:"orderType"`
	Quantity  decimal.Decimal    `json:"quantity"`
	Price     *decimal.Decimal   `json:"price,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

type CancelOrderRequest struct {
	OrderId uuid.UUID `json:"orderId" validate:"required"`
}

type CancelOrderResponse struct {
	OrderId uuid.UUID          `json:"orderId"`
	Status  models.OrderStatus `json:"status"`
}

type OrderDetails struct {
	OrderId         uuid.UUID          `json:"orderId"`
	UserId          string             `json:"userId"`
	Symbol          string             `json:"symbol"`
	Side            models.OrderSide   `json:"side"`
	OrderType       models.OrderType   `json:"orderType"`
	Quantity        decimal.Decimal    `json:"quantity"`
	Price           *decimal.Decimal   `json:"price,omitempty"`
	Status          models.OrderStatus `json:"status"`
	FilledQuantity  decimal.Decimal    `json:"filledQuantity"`
	FillPrice       *decimal.Decimal   `json:"fillPrice,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type ListOrdersResponse struct {
	Orders []OrderDetails `json:"orders"`
}

type PositionView struct {
	UserId        string          `json:"userId"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnl   decimal.Decimal `json:"realizedPnl"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ListPositionsResponse struct {
	Positions []PositionView `json:"positions"`
}

type RiskLimitsResponse struct {
	UserId             string          `json:"userId"`
	MaxPositionSize    decimal.Decimal `json:"maxPositionSize"`
	MaxDailyLoss       decimal.Decimal `json:"maxDailyLoss"`
	MaxLeverage        decimal.Decimal `json:"maxLeverage"`
	MaxConcentration   decimal.Decimal `json:"maxConcentration"`
	MaxOrdersPerMinute int             `json:"maxOrdersPerMinute"`
	InitialMargin      decimal.Decimal `json:"initialMargin"`
}

type ValidateRiskRequest struct {
	OrderId      uuid.UUID        `json:"orderId" validate:"required"`
	UserId       string           `json:"userId" validate:"required"`
	Symbol       string           `json:"symbol" validate:"required"`
	Side         models.OrderSide `json:"side" validate:"required,oneof=BUY SELL"`
	OrderType    models.OrderType `json:"orderType" validate:"required,oneof=MARKET LIMIT"`
	Quantity     decimal.Decimal  `json:"quantity" validate:"required"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	CurrentPrice *decimal.Decimal `json:"currentPrice,omitempty"`
}

type ValidateRiskResponse struct {
	Approved             bool            `json:"approved"`
	Reason               string          `json:"reason,omitempty"`
	RequiredMargin       decimal.Decimal `json:"requiredMargin"`
	AvailableMargin      decimal.Decimal `json:"availableMargin"`
	CurrentPositionValue decimal.Decimal `json:"currentPositionValue"`
	NewPositionValue     decimal.Decimal `json:"newPositionValue"`
	FailedChecks         []string        `json:"failedChecks"`
	ValidatedAt          time.Time       `json:"validatedAt"`
}

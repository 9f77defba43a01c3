package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskLimits are per-user caps, created lazily with defaults on first lookup.
type RiskLimits struct {
	UserId             string
	MaxPositionSize    decimal.Decimal
	MaxDailyLoss       decimal.Decimal
	MaxLeverage        decimal.Decimal
	MaxConcentration   decimal.Decimal
	MaxOrdersPerMinute int
	InitialMargin      decimal.Decimal
	UpdatedAt          time.Time
}

// RiskValidationRequest is the internal call from the coordinator to the
// risk validator. CurrentPrice is the market snapshot taken at call time.
type RiskValidationRequest struct {
	OrderId      uuid.UUID
	UserId       string
	Symbol       string
	Side         OrderSide
	OrderType    OrderType
	Quantity     decimal.Decimal
	Price        *decimal.Decimal
	CurrentPrice decimal.Decimal
}

// EffectivePrice is the price risk arithmetic runs against: the limit price
// when present, the market snapshot otherwise.
func (r RiskValidationRequest) EffectivePrice() decimal.Decimal {
	if r.Price != nil {
		return *r.Price
	}
	return r.CurrentPrice
}

// RiskValidationResult is produced per validation call. FailedChecks is
// empty exactly when Approved is true.
type RiskValidationResult struct {
	Approved             bool
	Reason               string
	RequiredMargin       decimal.Decimal
	AvailableMargin      decimal.Decimal
	CurrentPositionValue decimal.Decimal
	NewPositionValue     decimal.Decimal
	FailedChecks         []string
	ValidatedAt          time.Time
}

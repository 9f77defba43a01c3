package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's net signed holding in a symbol: positive quantity
// means long, negative means short. AvgPrice is the quantity-weighted entry
// price of the currently open quantity only.
type Position struct {
	UserId        string
	Symbol        string
	Quantity      decimal.Decimal
	AvgPrice      decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnl decimal.Decimal
	RealizedPnl   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MarkValue is the absolute exposure of the position at the given mark price.
func (p Position) MarkValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price).Abs()
}

// WithMark returns a copy with CurrentPrice and UnrealizedPnl refreshed.
func (p Position) WithMark(price decimal.Decimal) Position {
	p.CurrentPrice = price
	p.UnrealizedPnl = price.Sub(p.AvgPrice).Mul(p.Quantity)
	return p
}

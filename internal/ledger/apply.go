package ledger

import (
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/shopspring/decimal"
)

// applyFill computes the position after a signed fill as a pure copy-update.
// The caller applies the result under the per-user lock, so the whole
// read-compute-write step is atomic.
//
// Rules:
//   - fresh position: opens at the fill price;
//   - same-sign delta (or flat position): quantity-weighted average of the
//     open quantity and the new fill;
//   - reducing delta: realizes PnL on the closed portion, average unchanged;
//   - sign flip: realizes the whole old position, the excess opens a new
//     position at the fill price.
func applyFill(old models.Position, exists bool, userId, symbol string, delta, fillPrice decimal.Decimal, now time.Time) models.Position {
	if !exists {
		return models.Position{
			UserId:       userId,
			Symbol:       symbol,
			Quantity:     delta,
			AvgPrice:     fillPrice,
			CurrentPrice: fillPrice,
			RealizedPnl:  decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	p := old
	p.CurrentPrice = fillPrice
	p.UpdatedAt = now

	newQuantity := old.Quantity.Add(delta)

	switch {
	case old.Quantity.IsZero() || old.Quantity.Sign() == delta.Sign():
		// Extending (or reopening a flat position): recompute the weighted
		// average from scratch, never drift it incrementally.
		totalCost := old.Quantity.Mul(old.AvgPrice).Add(delta.Mul(fillPrice))
		p.Quantity = newQuantity
		p.AvgPrice = totalCost.Div(newQuantity)

	case newQuantity.Sign() == old.Quantity.Sign() || newQuantity.IsZero():
		// Reducing or fully closing: realize PnL on the closed portion.
		closedQty := delta.Abs()
		sign := decimal.NewFromInt(int64(old.Quantity.Sign()))
		realized := closedQty.Mul(fillPrice.Sub(old.AvgPrice)).Mul(sign)
		p.Quantity = newQuantity
		p.RealizedPnl = old.RealizedPnl.Add(realized)

	default:
		// Sign flip: the old position closes entirely, the excess opens a
		// new one at the fill price.
		closedQty := old.Quantity.Abs()
		sign := decimal.NewFromInt(int64(old.Quantity.Sign()))
		realized := closedQty.Mul(fillPrice.Sub(old.AvgPrice)).Mul(sign)
		p.Quantity = newQuantity
		p.AvgPrice = fillPrice
		p.RealizedPnl = old.RealizedPnl.Add(realized)
	}

	p.UnrealizedPnl = fillPrice.Sub(p.AvgPrice).Mul(p.Quantity)
	return p
}

package ledger

import (
	"testing"
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApplyFillOpensFreshPosition(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	p := applyFill(models.Position{}, false, "u1", "BTC/USD", d("2"), d("100"), now)

	if !p.Quantity.Equal(d("2")) {
		t.Errorf("quantity = %s, want 2", p.Quantity)
	}
	if !p.AvgPrice.Equal(d("100")) {
		t.Errorf("avg price = %s, want 100", p.AvgPrice)
	}
	if !p.RealizedPnl.IsZero() {
		t.Errorf("realized pnl = %s, want 0", p.RealizedPnl)
	}
	if p.CreatedAt != now || p.UpdatedAt != now {
		t.Errorf("timestamps not set to now")
	}
}

func TestApplyFillWeightedAverageOnExtend(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("2"), d("100"), now)

	// 2@100 + 3@110 = 5@106
	p := applyFill(old, true, "u1", "BTC/USD", d("3"), d("110"), now)

	if !p.Quantity.Equal(d("5")) {
		t.Errorf("quantity = %s, want 5", p.Quantity)
	}
	if !p.AvgPrice.Equal(d("106")) {
		t.Errorf("avg price = %s, want 106", p.AvgPrice)
	}
	if !p.RealizedPnl.IsZero() {
		t.Errorf("extend must not realize pnl, got %s", p.RealizedPnl)
	}
}

func TestApplyFillRealizesOnReduce(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("5"), d("100"), now)

	// Sell 2 of a 5-long at 120: realize 2*(120-100) = 40, avg unchanged.
	p := applyFill(old, true, "u1", "BTC/USD", d("-2"), d("120"), now)

	if !p.Quantity.Equal(d("3")) {
		t.Errorf("quantity = %s, want 3", p.Quantity)
	}
	if !p.AvgPrice.Equal(d("100")) {
		t.Errorf("avg price = %s, want unchanged 100", p.AvgPrice)
	}
	if !p.RealizedPnl.Equal(d("40")) {
		t.Errorf("realized pnl = %s, want 40", p.RealizedPnl)
	}
}

func TestApplyFillFullClose(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("5"), d("100"), now)

	p := applyFill(old, true, "u1", "BTC/USD", d("-5"), d("90"), now)

	if !p.Quantity.IsZero() {
		t.Errorf("quantity = %s, want 0", p.Quantity)
	}
	if !p.RealizedPnl.Equal(d("-50")) {
		t.Errorf("realized pnl = %s, want -50", p.RealizedPnl)
	}
}

func TestApplyFillSignFlip(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("3"), d("100"), now)

	// Sell 5 against a 3-long at 110: realize 3*(110-100) = 30, open 2 short at 110.
	p := applyFill(old, true, "u1", "BTC/USD", d("-5"), d("110"), now)

	if !p.Quantity.Equal(d("-2")) {
		t.Errorf("quantity = %s, want -2", p.Quantity)
	}
	if !p.AvgPrice.Equal(d("110")) {
		t.Errorf("avg price = %s, want 110", p.AvgPrice)
	}
	if !p.RealizedPnl.Equal(d("30")) {
		t.Errorf("realized pnl = %s, want 30", p.RealizedPnl)
	}
}

func TestApplyFillShortRealizesWithSign(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("-4"), d("200"), now)

	// Buy back 4 of a 4-short at 180: realize 4*(180-200)*(-1) = 80.
	p := applyFill(old, true, "u1", "BTC/USD", d("4"), d("180"), now)

	if !p.Quantity.IsZero() {
		t.Errorf("quantity = %s, want 0", p.Quantity)
	}
	if !p.RealizedPnl.Equal(d("80")) {
		t.Errorf("realized pnl = %s, want 80", p.RealizedPnl)
	}
}

func TestApplyFillReopenAfterFlat(t *testing.T) {
	now := time.Now().UTC()
	old := applyFill(models.Position{}, false, "u1", "BTC/USD", d("2"), d("100"), now)
	flat := applyFill(old, true, "u1", "BTC/USD", d("-2"), d("110"), now)

	p := applyFill(flat, true, "u1", "BTC/USD", d("3"), d("120"), now)

	if !p.Quantity.Equal(d("3")) {
		t.Errorf("quantity = %s, want 3", p.Quantity)
	}
	if !p.AvgPrice.Equal(d("120")) {
		t.Errorf("avg price = %s, want 120", p.AvgPrice)
	}
	// Realized pnl from the earlier round trip is preserved.
	if !p.RealizedPnl.Equal(d("20")) {
		t.Errorf("realized pnl = %s, want 20", p.RealizedPnl)
	}
}

func TestApplyFillProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Now().UTC()

		var pos models.Position
		exists := false
		expectedQty := decimal.Zero

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			qty := decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(t, "qty"))
			if rapid.Bool().Draw(t, "sell") {
				qty = qty.Neg()
			}
			price := decimal.NewFromInt(rapid.Int64Range(1, 10000).Draw(t, "price"))

			before := pos
			pos = applyFill(pos, exists, "u1", "BTC/USD", qty, price, now)
			exists = true

			expectedQty = expectedQty.Add(qty)
			if !pos.Quantity.Equal(expectedQty) {
				t.Fatalf("quantity drifted: got %s, want %s", pos.Quantity, expectedQty)
			}
			extending := before.Quantity.IsZero() || before.Quantity.Sign() == qty.Sign()
			if extending && !pos.RealizedPnl.Equal(before.RealizedPnl) {
				t.Fatalf("extend realized pnl: %s -> %s", before.RealizedPnl, pos.RealizedPnl)
			}
			reducing := !extending && pos.Quantity.Sign() == before.Quantity.Sign() || !extending && pos.Quantity.IsZero()
			if reducing && !pos.AvgPrice.Equal(before.AvgPrice) {
				t.Fatalf("reduce moved avg price: %s -> %s", before.AvgPrice, pos.AvgPrice)
			}
		}
	})
}

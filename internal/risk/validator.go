package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Check names reported in RiskValidationResult.FailedChecks.
const (
	CheckPositionLimit = "Position limit exceeded"
	CheckMargin        = "Insufficient margin"
	CheckDailyLoss     = "Daily loss limit exceeded"
	CheckConcentration = "Concentration limit exceeded"
	CheckVelocity      = "Velocity limit exceeded"
)

// PositionReader is the ledger view the validator needs: the snapshot for
// one symbol plus per-user aggregates.
type PositionReader interface {
	Get(userId, symbol string) (models.Position, bool)
	TotalPositionValue(userId string) decimal.Decimal
	DailyRealizedPnl(userId string) decimal.Decimal
}

// Validator runs the five risk checks in fixed order, short-circuiting on
// the first failure. It is stateless per call except for the velocity
// windows and the limits cache.
type Validator struct {
	log      *slog.Logger
	ledger   PositionReader
	limits   *LimitsCache
	velocity *VelocityTracker
	now      func() time.Time
}

func NewValidator(log *slog.Logger, ledger PositionReader, limits *LimitsCache) *Validator {
	return &Validator{
		log:      log,
		ledger:   ledger,
		limits:   limits,
		velocity: NewVelocityTracker(),
		now:      time.Now,
	}
}

// Limits exposes the lazily-defaulted per-user limits (ops endpoint).
func (v *Validator) Limits(userId string) models.RiskLimits {
	return v.limits.Get(userId)
}

func (v *Validator) Validate(_ context.Context, req models.RiskValidationRequest) (models.RiskValidationResult, error) {
	const op = "risk.Validate"
	log := v.log.With("op", op, "order_id", req.OrderId, "user_id", req.UserId)

	result := models.RiskValidationResult{
		FailedChecks: []string{},
		ValidatedAt:  v.now().UTC(),
	}

	limits := v.limits.Get(req.UserId)

	// The attempt counts against the window no matter how validation ends.
	attempts := v.velocity.Record(req.UserId)

	orderValue := req.Quantity.Mul(req.EffectivePrice())

	// 1. Position limit.
	var currentValue decimal.Decimal
	if pos, ok := v.ledger.Get(req.UserId, req.Symbol); ok {
		currentValue = pos.MarkValue(req.CurrentPrice)
	}
	newValue := currentValue.Add(orderValue)
	result.CurrentPositionValue = currentValue
	result.NewPositionValue = newValue

	if newValue.GreaterThan(limits.MaxPositionSize) {
		result.FailedChecks = append(result.FailedChecks, CheckPositionLimit)
		result.Reason = fmt.Sprintf("Position limit exceeded. Max: %s, New: %s",
			limits.MaxPositionSize, newValue)
		log.Warn("position limit check failed", "max", limits.MaxPositionSize, "new", newValue)
		return result, nil
	}

	// 2. Margin.
	requiredMargin := orderValue.Div(limits.MaxLeverage)
	totalValue := v.ledger.TotalPositionValue(req.UserId)
	availableMargin := limits.InitialMargin.Sub(totalValue.Div(limits.MaxLeverage))
	if availableMargin.IsNegative() {
		availableMargin = decimal.Zero
	}
	result.RequiredMargin = requiredMargin
	result.AvailableMargin = availableMargin

	if requiredMargin.GreaterThan(availableMargin) {
		result.FailedChecks = append(result.FailedChecks, CheckMargin)
		result.Reason = fmt.Sprintf("Insufficient margin. Required: %s, Available: %s",
			requiredMargin, availableMargin)
		log.Warn("margin check failed", "required", requiredMargin, "available", availableMargin)
		return result, nil
	}

	// 3. Daily loss.
	dailyPnl := v.ledger.DailyRealizedPnl(req.UserId)
	if dailyPnl.LessThan(limits.MaxDailyLoss.Neg()) {
		result.FailedChecks = append(result.FailedChecks, CheckDailyLoss)
		result.Reason = fmt.Sprintf("Daily loss limit exceeded. Current: %s, Max: %s",
			dailyPnl, limits.MaxDailyLoss.Neg())
		log.Warn("daily loss check failed", "daily_pnl", dailyPnl, "max_loss", limits.MaxDailyLoss)
		return result, nil
	}

	// 4. Concentration. A zero denominator counts as concentration 0.
	symbolValue := currentValue.Add(orderValue)
	totalAfter := totalValue.Add(orderValue)
	if totalAfter.IsPositive() {
		concentration := symbolValue.Div(totalAfter)
		if concentration.GreaterThan(limits.MaxConcentration) {
			result.FailedChecks = append(result.FailedChecks, CheckConcentration)
			result.Reason = fmt.Sprintf("Concentration limit exceeded. Current: %s, Max: %s",
				concentration, limits.MaxConcentration)
			log.Warn("concentration check failed",
				"concentration", concentration, "max", limits.MaxConcentration)
			return result, nil
		}
	}

	// 5. Velocity.
	if attempts > limits.MaxOrdersPerMinute {
		result.FailedChecks = append(result.FailedChecks, CheckVelocity)
		result.Reason = fmt.Sprintf("Velocity limit exceeded. Orders in last minute: %d, Max: %d",
			attempts, limits.MaxOrdersPerMinute)
		log.Warn("velocity check failed", "attempts", attempts, "max", limits.MaxOrdersPerMinute)
		return result, nil
	}

	result.Approved = true
	result.Reason = "Order approved by risk engine"
	log.Info("order approved", "symbol", req.Symbol, "quantity", req.Quantity)
	return result, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"OrderPipeline/internal/domain/models"

	"github.com/shopspring/decimal"
)

var ErrZeroDelta = errors.New("fill delta must be non-zero")

const shardCount = 32

// Store persists position documents. Writes are best-effort: the in-memory
// ledger stays authoritative for the running process.
type Store interface {
	UpsertPosition(ctx context.Context, position models.Position) error
}

type shard struct {
	mu sync.Mutex
	// userId -> symbol -> position
	positions map[string]map[string]models.Position
}

// Ledger holds every (user, symbol) position. A user's positions live in one
// shard, and ApplyFill runs the whole read-compute-write step under that
// shard's lock, so concurrent fills for the same key cannot lose updates.
type Ledger struct {
	log    *slog.Logger
	store  Store
	shards [shardCount]*shard
	now    func() time.Time
}

func New(log *slog.Logger, store Store) *Ledger {
	l := &Ledger{
		log:   log,
		store: store,
		now:   time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{positions: make(map[string]map[string]models.Position)}
	}
	return l
}

func (l *Ledger) shardFor(userId string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userId))
	return l.shards[h.Sum32()%shardCount]
}

// Get returns the current position for (user, symbol), if any.
func (l *Ledger) Get(userId, symbol string) (models.Position, bool) {
	sh := l.shardFor(userId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	p, ok := sh.positions[userId][symbol]
	return p, ok
}

// ApplyFill is the only position mutator. delta is signed: positive for
// buys, negative for sells.
func (l *Ledger) ApplyFill(ctx context.Context, userId, symbol string, delta, fillPrice decimal.Decimal) (models.Position, error) {
	const op = "ledger.ApplyFill"

	if delta.IsZero() {
		return models.Position{}, fmt.Errorf("%s: %w", op, ErrZeroDelta)
	}

	sh := l.shardFor(userId)
	sh.mu.Lock()
	old, exists := sh.positions[userId][symbol]
	updated := applyFill(old, exists, userId, symbol, delta, fillPrice, l.now().UTC())
	if sh.positions[userId] == nil {
		sh.positions[userId] = make(map[string]models.Position)
	}
	sh.positions[userId][symbol] = updated
	sh.mu.Unlock()

	l.log.Info("position updated",
		"op", op, "user_id", userId, "symbol", symbol,
		"quantity", updated.Quantity, "avg_price", updated.AvgPrice,
		"realized_pnl", updated.RealizedPnl)

	if l.store != nil {
		if err := l.store.UpsertPosition(ctx, updated); err != nil {
			l.log.Error("failed to persist position, ledger stays authoritative",
				"op", op, "user_id", userId, "symbol", symbol, "err", err)
		}
	}

	return updated, nil
}

// UserPositions returns a stable snapshot of all of the user's positions.
func (l *Ledger) UserPositions(userId string) []models.Position {
	sh := l.shardFor(userId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	bySymbol := sh.positions[userId]
	positions := make([]models.Position, 0, len(bySymbol))
	for _, p := range bySymbol {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// TotalPositionValue sums the absolute exposure of the user's open
// positions at their last marked prices.
func (l *Ledger) TotalPositionValue(userId string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.UserPositions(userId) {
		total = total.Add(p.MarkValue(p.CurrentPrice))
	}
	return total
}

// DailyRealizedPnl sums realized PnL over positions touched since UTC
// midnight.
func (l *Ledger) DailyRealizedPnl(userId string) decimal.Decimal {
	today := l.now().UTC().Truncate(24 * time.Hour)

	total := decimal.Zero
	for _, p := range l.UserPositions(userId) {
		if !p.UpdatedAt.Before(today) {
			total = total.Add(p.RealizedPnl)
		}
	}
	return total
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"OrderPipeline/internal/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotExists = errors.New("order does not exist")
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	const op = "postgresql.New"
	log := slog.With("op", op)
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		log.Error("Failed to connect to database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = db.Ping(context.Background())
	if err != nil {
		log.Error("Failed to ping database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

const orderColumns = `id, user_id, symbol, side, order_type, quantity, price,
	idempotency_key, status, filled_quantity, fill_price, rejection_reason,
	created_at, updated_at`

func (s *Storage) SaveOrder(ctx context.Context, order models.Order) error {
	const op = "postgresql.SaveOrder"
	log := slog.With("op", op)

	const querySaveOrder = `INSERT INTO orders(` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.Exec(ctx, querySaveOrder,
		order.Id, order.UserId, order.Symbol, order.Side, order.Type,
		order.Quantity, order.Price, order.IdempotencyKey, order.Status,
		order.FilledQuantity, order.FillPrice, order.RejectionReason,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		log.Error("Failed to save order", "id", order.Id, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpdateOrder replaces the whole mutable projection of the order row.
// Document-level last-writer-wins: the per-order coordinator is the only
// writer, so there is no competing update for the same id.
func (s *Storage) UpdateOrder(ctx context.Context, order models.Order) error {
	const op = "postgresql.UpdateOrder"
	log := slog.With("op", op)

	const queryUpdateOrder = `UPDATE orders SET
		status = $2, filled_quantity = $3, fill_price = $4,
		rejection_reason = $5, updated_at = $6
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, queryUpdateOrder,
		order.Id, order.Status, order.FilledQuantity, order.FillPrice,
		order.RejectionReason, order.UpdatedAt)
	if err != nil {
		log.Error("Failed to update order", "id", order.Id, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrOrderNotExists)
	}

	return nil
}

func (s *Storage) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "postgresql.GetOrder"
	log := slog.With("op", op)

	const queryGetOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := s.db.QueryRow(ctx, queryGetOrder, id).Scan(
		&order.Id, &order.UserId, &order.Symbol, &order.Side, &order.Type,
		&order.Quantity, &order.Price, &order.IdempotencyKey, &order.Status,
		&order.FilledQuantity, &order.FillPrice, &order.RejectionReason,
		&order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return order, fmt.Errorf("%s: %w", op, ErrOrderNotExists)
	}
	if err != nil {
		log.Error("Failed to get order", "id", id, "err", err)
		return order, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

func (s *Storage) GetUserOrders(ctx context.Context, userId string, status *models.OrderStatus) ([]models.Order, error) {
	const op = "postgresql.GetUserOrders"
	log := slog.With("op", op)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userId}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		log.Error("Failed to get user orders", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.Id, &order.UserId, &order.Symbol, &order.Side, &order.Type,
			&order.Quantity, &order.Price, &order.IdempotencyKey, &order.Status,
			&order.FilledQuantity, &order.FillPrice, &order.RejectionReason,
			&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			log.Error("Failed to scan user order", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// UpsertPosition replaces the whole (user, symbol) position document.
// Concurrency safety is the ledger's responsibility; the row write itself
// is last-writer-wins.
func (s *Storage) UpsertPosition(ctx context.Context, position models.Position) error {
	const op = "postgresql.UpsertPosition"
	log := slog.With("op", op)

	const queryUpsertPosition = `INSERT INTO positions(
		user_id, symbol, quantity, avg_price, current_price,
		unrealized_pnl, realized_pnl, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			avg_price = EXCLUDED.avg_price,
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(ctx, queryUpsertPosition,
		position.UserId, position.Symbol, position.Quantity, position.AvgPrice,
		position.CurrentPrice, position.UnrealizedPnl, position.RealizedPnl,
		position.CreatedAt, position.UpdatedAt)
	if err != nil {
		log.Error("Failed to upsert position",
			"user_id", position.UserId, "symbol", position.Symbol, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetUserPositions(ctx context.Context, userId string) ([]models.Position, error) {
	const op = "postgresql.GetUserPositions"
	log := slog.With("op", op)

	const queryGetUserPositions = `SELECT user_id, symbol, quantity, avg_price,
		current_price, unrealized_pnl, realized_pnl, created_at, updated_at
		FROM positions WHERE user_id = $1`

	rows, err := s.db.Query(ctx, queryGetUserPositions, userId)
	if err != nil {
		log.Error("Failed to get user positions", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		err := rows.Scan(&p.UserId, &p.Symbol, &p.Quantity, &p.AvgPrice,
			&p.CurrentPrice, &p.UnrealizedPnl, &p.RealizedPnl,
			&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			log.Error("Failed to scan position", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		positions = append(positions, p)
	}

	return positions, nil
}

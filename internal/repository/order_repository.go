package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// OrderRepository is the postgres-backed order provider. Pricing and exchange
// method management belong to the order workflow; the chat core only creates
// records at room-creation time and drives status transitions.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	SetStatus(ctx context.Context, id string, status domain.OrderStatus, notes string, handledBy *string) (*domain.Order, error)
}

type orderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository instantiates the repository.
func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &orderRepository{pool: pool}
}

const orderColumns = `id, user_id, exchange_method, amount, exchange_rate, status,
       moderator_notes, handled_by, completed_at, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	const query = `
        INSERT INTO orders (user_id, exchange_method, amount, exchange_rate, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		order.UserID,
		order.ExchangeMethod,
		order.Amount,
		order.ExchangeRate,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	return r.scanOne(ctx, query, id)
}

// SetStatus updates the order status, stamping completed_at when the order
// completes.
func (r *orderRepository) SetStatus(ctx context.Context, id string, status domain.OrderStatus, notes string, handledBy *string) (*domain.Order, error) {
	var completedAt *time.Time
	if status == domain.OrderStatusCompleted {
		now := time.Now()
		completedAt = &now
	}
	const query = `
        UPDATE orders
        SET status=$2,
            moderator_notes = CASE WHEN $3 <> '' THEN $3 ELSE moderator_notes END,
            handled_by = COALESCE($4, handled_by),
            completed_at = COALESCE($5, completed_at),
            updated_at = NOW()
        WHERE id=$1
        RETURNING ` + orderColumns
	return scanOrderRow(r.pool.QueryRow(ctx, query, id, status, notes, handledBy, completedAt))
}

func (r *orderRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	return scanOrderRow(r.pool.QueryRow(ctx, query, args...))
}

func scanOrderRow(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ExchangeMethod,
		&order.Amount,
		&order.ExchangeRate,
		&order.Status,
		&order.ModeratorNotes,
		&order.HandledBy,
		&order.CompletedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &order, nil
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// UserRepository is the postgres-backed user directory. Account lifecycle is
// owned elsewhere; this core only resolves identities and lists moderators.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListModerators(ctx context.Context, exclude string) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates the repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, avatar, role, created_at
        FROM users WHERE id=$1`
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Avatar,
		&user.Role,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListModerators(ctx context.Context, exclude string) ([]domain.User, error) {
	const query = `
        SELECT id, name, email, avatar, role, created_at
        FROM users WHERE role=$1 AND ($2 = '' OR id <> $2::uuid)
        ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, domain.RoleModerator, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Avatar,
			&user.Role,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

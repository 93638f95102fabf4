package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// MessageRepository encapsulates the append-only per-room message log.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListPage(ctx context.Context, roomID string, page, limit int) ([]domain.Message, error)
	ListImagesByRoom(ctx context.Context, roomID string) ([]domain.Message, error)
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, room_id, sender_id, msg_type, content,
       asset_id, asset_mime, asset_size, asset_width, asset_height,
       order_status, created_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (room_id, sender_id, msg_type, content,
                              asset_id, asset_mime, asset_size, asset_width, asset_height,
                              order_status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`

	var (
		assetID, assetMime      *string
		assetSize               *int64
		assetWidth, assetHeight *int
		orderStatus             *domain.OrderStatus
	)
	if msg.Image != nil {
		assetID = &msg.Image.AssetID
		assetMime = &msg.Image.MimeType
		assetSize = &msg.Image.Size
		assetWidth = &msg.Image.Width
		assetHeight = &msg.Image.Height
	}
	if msg.System != nil {
		orderStatus = &msg.System.OrderStatus
	}

	return r.pool.QueryRow(ctx, query,
		msg.RoomID,
		msg.SenderID,
		msg.Type,
		msg.Content,
		assetID,
		assetMime,
		assetSize,
		assetWidth,
		assetHeight,
		orderStatus,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListPage(ctx context.Context, roomID string, page, limit int) ([]domain.Message, error) {
	if page < 1 {
		page = 1
	}
	const query = `
        SELECT ` + messageColumns + `
        FROM messages WHERE room_id=$1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, roomID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) ListImagesByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + `
        FROM messages WHERE room_id=$1 AND msg_type=$2 AND asset_id IS NOT NULL
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, roomID, domain.MessageTypeImage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE room_id=$1`, roomID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var (
			msg                     domain.Message
			assetID, assetMime      *string
			assetSize               *int64
			assetWidth, assetHeight *int
			orderStatus             *domain.OrderStatus
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.SenderID,
			&msg.Type,
			&msg.Content,
			&assetID,
			&assetMime,
			&assetSize,
			&assetWidth,
			&assetHeight,
			&orderStatus,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if assetID != nil {
			msg.Image = &domain.ImageMetadata{AssetID: *assetID}
			if assetMime != nil {
				msg.Image.MimeType = *assetMime
			}
			if assetSize != nil {
				msg.Image.Size = *assetSize
			}
			if assetWidth != nil {
				msg.Image.Width = *assetWidth
			}
			if assetHeight != nil {
				msg.Image.Height = *assetHeight
			}
		}
		if orderStatus != nil {
			msg.System = &domain.SystemMetadata{OrderStatus: *orderStatus}
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// Sentinel outcomes of conditional room mutations. Services map these onto
// the domain error taxonomy.
var (
	ErrRoomAssigned      = errors.New("room already has a moderator")
	ErrNotRoomModerator  = errors.New("caller is not the room moderator")
	ErrInvalidRoomState  = errors.New("room is not in a state allowing this operation")
	ErrNoPendingTransfer = errors.New("no pending transfer for caller")
)

// RoomRepository encapsulates chat room persistence. Rooms are never
// physically deleted; closed is terminal and retained for audit. Every
// moderator mutation is a single-statement compare-and-swap committed in one
// transaction with its audit action, so status, moderator and action log can
// never diverge.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.ChatRoom) error
	GetByID(ctx context.Context, id string) (*domain.ChatRoom, error)
	GetOpenByOrder(ctx context.Context, orderID string) (*domain.ChatRoom, error)
	Claim(ctx context.Context, roomID, moderatorID string) (*domain.ChatRoom, error)
	InitiateTransfer(ctx context.Context, roomID, fromModerator, toModerator string) (*domain.ChatRoom, error)
	CompleteTransfer(ctx context.Context, roomID, toModerator string) (*domain.ChatRoom, error)
	RejectTransfer(ctx context.Context, roomID, toModerator string) (*domain.ChatRoom, error)
	Close(ctx context.Context, roomID, actorID string, action domain.ActionType, notes string) (*domain.ChatRoom, error)
	AppendAction(ctx context.Context, action *domain.ModeratorAction) error
	ListActions(ctx context.Context, roomID string) ([]domain.ModeratorAction, error)
}

type roomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository instantiates the repository.
func NewRoomRepository(pool *pgxpool.Pool) RoomRepository {
	return &roomRepository{pool: pool}
}

const roomColumns = `id, name, order_id, creator_id, moderator_id, status,
       transfer_from, transfer_to, transfer_status, transfer_at,
       created_at, updated_at`

func (r *roomRepository) Create(ctx context.Context, room *domain.ChatRoom) error {
	const query = `
        INSERT INTO chat_rooms (name, order_id, creator_id, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	var orderID *string
	if room.OrderID != "" {
		orderID = &room.OrderID
	}
	return r.pool.QueryRow(ctx, query,
		room.Name,
		orderID,
		room.CreatorID,
		room.Status,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.ChatRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE id=$1`
	return scanRoom(r.pool.QueryRow(ctx, query, id))
}

func (r *roomRepository) GetOpenByOrder(ctx context.Context, orderID string) (*domain.ChatRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE order_id=$1 AND status <> 'closed'`
	return scanRoom(r.pool.QueryRow(ctx, query, orderID))
}

// Claim atomically takes ownership of an unassigned room. The predicate keys
// on "moderator is currently null", so exactly one of N concurrent claimants
// can win; the rest observe ErrRoomAssigned.
func (r *roomRepository) Claim(ctx context.Context, roomID, moderatorID string) (*domain.ChatRoom, error) {
	const update = `
        UPDATE chat_rooms
        SET moderator_id=$2, status=$3, updated_at=NOW()
        WHERE id=$1 AND moderator_id IS NULL AND status IN ($4,$5)
        RETURNING ` + roomColumns

	return r.mutateWithAction(ctx, roomID, moderatorID, domain.ActionJoin, "",
		func(tx pgx.Tx) (*domain.ChatRoom, error) {
			room, err := scanRoom(tx.QueryRow(ctx, update, roomID, moderatorID,
				domain.RoomStatusActive, domain.RoomStatusWaiting, domain.RoomStatusActive))
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			// Lost the race or the room is gone. Same error whether the
			// room was claimed a microsecond or a day ago.
			current, gerr := r.getWithTx(ctx, tx, roomID)
			if gerr != nil {
				return nil, gerr
			}
			if current.HasModerator() || current.Status == domain.RoomStatusClosed {
				return nil, ErrRoomAssigned
			}
			return nil, ErrInvalidRoomState
		})
}

// InitiateTransfer flips an active room owned by fromModerator into the
// transferring state with a pending request.
func (r *roomRepository) InitiateTransfer(ctx context.Context, roomID, fromModerator, toModerator string) (*domain.ChatRoom, error) {
	const update = `
        UPDATE chat_rooms
        SET status=$4, transfer_from=$2, transfer_to=$3, transfer_status=$5, transfer_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND moderator_id=$2 AND status=$6
        RETURNING ` + roomColumns

	return r.mutateWithAction(ctx, roomID, fromModerator, domain.ActionTransferInitiated, "",
		func(tx pgx.Tx) (*domain.ChatRoom, error) {
			room, err := scanRoom(tx.QueryRow(ctx, update, roomID, fromModerator, toModerator,
				domain.RoomStatusTransferring, domain.TransferPending, domain.RoomStatusActive))
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			current, gerr := r.getWithTx(ctx, tx, roomID)
			if gerr != nil {
				return nil, gerr
			}
			if current.Moderator == nil || *current.Moderator != fromModerator {
				return nil, ErrNotRoomModerator
			}
			return nil, ErrInvalidRoomState
		})
}

// CompleteTransfer reassigns the moderator to the pending target and clears
// the request, returning the room to active.
func (r *roomRepository) CompleteTransfer(ctx context.Context, roomID, toModerator string) (*domain.ChatRoom, error) {
	const update = `
        UPDATE chat_rooms
        SET moderator_id=$2, status=$3,
            transfer_from=NULL, transfer_to=NULL, transfer_status=NULL, transfer_at=NULL,
            updated_at=NOW()
        WHERE id=$1 AND status=$4 AND transfer_to=$2 AND transfer_status=$5
        RETURNING ` + roomColumns

	return r.mutateWithAction(ctx, roomID, toModerator, domain.ActionTransferCompleted, "",
		func(tx pgx.Tx) (*domain.ChatRoom, error) {
			room, err := scanRoom(tx.QueryRow(ctx, update, roomID, toModerator,
				domain.RoomStatusActive, domain.RoomStatusTransferring, domain.TransferPending))
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			if _, gerr := r.getWithTx(ctx, tx, roomID); gerr != nil {
				return nil, gerr
			}
			return nil, ErrNoPendingTransfer
		})
}

// RejectTransfer returns a transferring room to active under its original
// moderator and records the refusal.
func (r *roomRepository) RejectTransfer(ctx context.Context, roomID, toModerator string) (*domain.ChatRoom, error) {
	const update = `
        UPDATE chat_rooms
        SET status=$3,
            transfer_from=NULL, transfer_to=NULL, transfer_status=NULL, transfer_at=NULL,
            updated_at=NOW()
        WHERE id=$1 AND status=$4 AND transfer_to=$2 AND transfer_status=$5
        RETURNING ` + roomColumns

	return r.mutateWithAction(ctx, roomID, toModerator, domain.ActionTransferRejected, "",
		func(tx pgx.Tx) (*domain.ChatRoom, error) {
			room, err := scanRoom(tx.QueryRow(ctx, update, roomID, toModerator,
				domain.RoomStatusActive, domain.RoomStatusTransferring, domain.TransferPending))
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			if _, gerr := r.getWithTx(ctx, tx, roomID); gerr != nil {
				return nil, gerr
			}
			return nil, ErrNoPendingTransfer
		})
}

// Close marks a room closed. The row survives for audit.
func (r *roomRepository) Close(ctx context.Context, roomID, actorID string, action domain.ActionType, notes string) (*domain.ChatRoom, error) {
	const update = `
        UPDATE chat_rooms
        SET status=$2, updated_at=NOW()
        WHERE id=$1 AND status <> $2
        RETURNING ` + roomColumns

	return r.mutateWithAction(ctx, roomID, actorID, action, notes,
		func(tx pgx.Tx) (*domain.ChatRoom, error) {
			room, err := scanRoom(tx.QueryRow(ctx, update, roomID, domain.RoomStatusClosed))
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			if _, gerr := r.getWithTx(ctx, tx, roomID); gerr != nil {
				return nil, gerr
			}
			return nil, ErrInvalidRoomState
		})
}

func (r *roomRepository) AppendAction(ctx context.Context, action *domain.ModeratorAction) error {
	const query = `
        INSERT INTO room_actions (room_id, action_type, moderator_id, notes)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		action.RoomID,
		action.Type,
		action.ModeratorID,
		action.Notes,
	).Scan(&action.ID, &action.CreatedAt)
}

func (r *roomRepository) ListActions(ctx context.Context, roomID string) ([]domain.ModeratorAction, error) {
	const query = `
        SELECT id, room_id, action_type, moderator_id, notes, created_at
        FROM room_actions WHERE room_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ModeratorAction
	for rows.Next() {
		var action domain.ModeratorAction
		if err := rows.Scan(
			&action.ID,
			&action.RoomID,
			&action.Type,
			&action.ModeratorID,
			&action.Notes,
			&action.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, action)
	}
	return result, rows.Err()
}

// mutateWithAction runs a conditional room update and its audit action insert
// in one transaction. Either both commit or neither does.
func (r *roomRepository) mutateWithAction(ctx context.Context, roomID, actorID string, action domain.ActionType, notes string, mutate func(pgx.Tx) (*domain.ChatRoom, error)) (*domain.ChatRoom, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	room, err := mutate(tx)
	if err != nil {
		return nil, err
	}

	const insertAction = `
        INSERT INTO room_actions (room_id, action_type, moderator_id, notes)
        VALUES ($1,$2,$3,$4)`
	if _, err := tx.Exec(ctx, insertAction, roomID, action, actorID, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) getWithTx(ctx context.Context, tx pgx.Tx, id string) (*domain.ChatRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE id=$1`
	return scanRoom(tx.QueryRow(ctx, query, id))
}

func scanRoom(row pgx.Row) (*domain.ChatRoom, error) {
	var (
		room           domain.ChatRoom
		orderID        *string
		transferFrom   *string
		transferTo     *string
		transferStatus *domain.TransferState
		transferAt     *time.Time
	)
	if err := row.Scan(
		&room.ID,
		&room.Name,
		&orderID,
		&room.CreatorID,
		&room.Moderator,
		&room.Status,
		&transferFrom,
		&transferTo,
		&transferStatus,
		&transferAt,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if orderID != nil {
		room.OrderID = *orderID
	}
	if transferFrom != nil && transferTo != nil && transferStatus != nil {
		req := domain.TransferRequest{
			From:   *transferFrom,
			To:     *transferTo,
			Status: *transferStatus,
		}
		if transferAt != nil {
			req.CreatedAt = *transferAt
		}
		room.Transfer = &req
	}
	return &room, nil
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/cache"
	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/events"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// Asset is an externally stored binary referenced by image messages.
type Asset struct {
	ID       string
	URL      string
	MimeType string
	Size     int64
	Width    int
	Height   int
}

// AssetStorage is the external collaborator holding image binaries. Uploads
// return an opaque id plus display data; deletes are by id.
type AssetStorage interface {
	Upload(ctx context.Context, data []byte, mimeType string) (*Asset, error)
	Delete(ctx context.Context, assetID string) error
}

// MessagePage is one page of room history, newest first.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Page     int              `json:"page"`
	HasMore  bool             `json:"has_more"`
}

// MessageService persists messages and fans them out to the room's live
// participants. The durable append always happens before the broadcast.
type MessageService struct {
	messages   repository.MessageRepository
	users      repository.UserRepository
	cache      cache.Store
	assets     AssetStorage
	notifier   Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.Config
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	MessageRepo repository.MessageRepository
	UserRepo    repository.UserRepository
	Cache       cache.Store
	Assets      AssetStorage
	Notifier    Notifier
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewMessageService constructs the service.
func NewMessageService(cfg config.Config, deps MessageDependencies) *MessageService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageService{
		messages:   deps.MessageRepo,
		users:      deps.UserRepo,
		cache:      deps.Cache,
		assets:     deps.Assets,
		notifier:   notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// SetNotifier attaches the live session layer after construction. The hub and
// the services reference each other, so one side is wired late.
func (s *MessageService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Append validates, persists and broadcasts a message.
func (s *MessageService) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if !domain.ValidMessageType(msg.Type) {
		return nil, apperrors.NewValidationError("unknown message type", map[string]any{"type": msg.Type})
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, apperrors.NewValidationError("empty message content", nil)
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.NewDependencyFailure("message store", err)
	}
	s.cache.DelPattern(ctx, cache.MessagesPattern(msg.RoomID))

	s.enrichSender(ctx, msg)

	// Durably appended above; only now fan out to the room.
	s.notifier.BroadcastToRoom(msg.RoomID, EventChatMessage, msg)
	s.publish(ctx, events.Event{
		Type:    events.EventMessageAdded,
		RoomID:  msg.RoomID,
		ActorID: msg.SenderID,
		Payload: events.MessageAddedPayload{
			MessageID: msg.ID,
			Type:      msg.Type,
			SenderID:  msg.SenderID,
		},
	})
	return msg, nil
}

// AppendText persists a plain text message from a user.
func (s *MessageService) AppendText(ctx context.Context, roomID, senderID, text string) (*domain.Message, error) {
	return s.Append(ctx, &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Type:     domain.MessageTypeText,
		Content:  text,
	})
}

// AppendImage uploads the binary to asset storage first, then records the
// image message pointing at it.
func (s *MessageService) AppendImage(ctx context.Context, roomID, senderID string, data []byte, mimeType string) (*domain.Message, error) {
	if int64(len(data)) > s.cfg.Assets.MaxSizeBytes {
		return nil, apperrors.NewValidationError("image too large", map[string]any{"max_bytes": s.cfg.Assets.MaxSizeBytes})
	}
	asset, err := s.assets.Upload(ctx, data, mimeType)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("asset storage", err)
	}
	msg, err := s.Append(ctx, &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Type:     domain.MessageTypeImage,
		Content:  asset.URL,
		Image: &domain.ImageMetadata{
			AssetID:  asset.ID,
			MimeType: asset.MimeType,
			Size:     asset.Size,
			Width:    asset.Width,
			Height:   asset.Height,
		},
	})
	if err != nil {
		// The message row never existed; do not leave the asset orphaned.
		if derr := s.assets.Delete(ctx, asset.ID); derr != nil {
			s.logger.Warn("orphaned asset after failed append",
				zap.String("asset_id", asset.ID), zap.Error(derr))
		}
		return nil, err
	}
	return msg, nil
}

// AppendSystem records an automated order notice in the room.
func (s *MessageService) AppendSystem(ctx context.Context, roomID string, status domain.OrderStatus, note string) (*domain.Message, error) {
	content := "Order status updated to " + string(status)
	if note != "" {
		content += ": " + note
	}
	return s.Append(ctx, &domain.Message{
		RoomID:   roomID,
		SenderID: domain.SystemSender,
		Type:     domain.MessageTypeSystem,
		Content:  content,
		System:   &domain.SystemMetadata{OrderStatus: status},
	})
}

// Page returns room history newest-first. Pages are cached per
// (room, page, limit); a miss falls through to the store.
func (s *MessageService) Page(ctx context.Context, roomID string, page, limit int) (*MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.Chat.DefaultPageSize
	}
	if limit > s.cfg.Chat.MaxPageSize {
		limit = s.cfg.Chat.MaxPageSize
	}

	key := cache.MessagesKey(roomID, page, limit)
	var cached MessagePage
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	msgs, err := s.messages.ListPage(ctx, roomID, page, limit)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("message store", err)
	}
	for i := range msgs {
		s.enrichSender(ctx, &msgs[i])
	}
	result := &MessagePage{
		Messages: msgs,
		Page:     page,
		HasMore:  len(msgs) == limit,
	}
	s.cache.Set(ctx, key, result, time.Duration(s.cfg.Cache.MessagesTTLSeconds)*time.Second)
	return result, nil
}

// CleanResult reports what a history wipe removed.
type CleanResult struct {
	MessagesDeleted int64
	AssetsDeleted   int
}

// CleanHistory wipes a room's message log in two explicit phases: external
// assets first, message rows second. The reported count is assets actually
// deleted, not assumed; an asset failure aborts before any rows are removed
// so no message is ever left pointing at a missing asset.
func (s *MessageService) CleanHistory(ctx context.Context, roomID string) (*CleanResult, error) {
	images, err := s.messages.ListImagesByRoom(ctx, roomID)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("message store", err)
	}

	deleted := 0
	for _, img := range images {
		if img.Image == nil {
			continue
		}
		if err := s.assets.Delete(ctx, img.Image.AssetID); err != nil {
			return &CleanResult{AssetsDeleted: deleted},
				apperrors.NewDependencyFailure("asset storage", err)
		}
		deleted++
	}

	removed, err := s.messages.DeleteByRoom(ctx, roomID)
	if err != nil {
		return &CleanResult{AssetsDeleted: deleted},
			apperrors.NewDependencyFailure("message store", err)
	}
	s.cache.DelPattern(ctx, cache.MessagesPattern(roomID))

	result := &CleanResult{MessagesDeleted: removed, AssetsDeleted: deleted}
	s.publish(ctx, events.Event{
		Type:   events.EventHistoryCleaned,
		RoomID: roomID,
		Payload: events.HistoryCleanedPayload{
			MessagesDeleted: removed,
			AssetsDeleted:   deleted,
		},
	})
	return result, nil
}

func (s *MessageService) enrichSender(ctx context.Context, msg *domain.Message) {
	if msg.SenderID == domain.SystemSender {
		msg.SenderName = "System"
		return
	}
	sender, err := s.users.GetByID(ctx, msg.SenderID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("resolve sender failed", zap.String("sender_id", msg.SenderID), zap.Error(err))
		}
		return
	}
	msg.SenderName = sender.Name
	msg.SenderAvatar = sender.Avatar
}

func (s *MessageService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/events"
	"github.com/spec-kit/exchange-chat-service/internal/observability"
)

// NotificationService listens for domain events and records them. Push and
// email channels hang off these hooks; today they log and count.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService constructs the service.
func NewNotificationService(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger, metrics: metrics}
}

// RegisterHandlers subscribes the service to every room lifecycle event.
func (s *NotificationService) RegisterHandlers() {
	for _, t := range []events.EventType{
		events.EventRoomCreated,
		events.EventRoomClaimed,
		events.EventTransferInitiated,
		events.EventTransferCompleted,
		events.EventTransferRejected,
		events.EventOrderStatusChanged,
		events.EventHistoryCleaned,
	} {
		s.dispatcher.Subscribe(t, s.onEvent)
	}
}

func (s *NotificationService) onEvent(_ context.Context, event events.Event) error {
	s.metrics.RecordSessionEvent(string(event.Type))
	s.logger.Info("domain event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("room_id", event.RoomID),
		zap.String("actor_id", event.ActorID),
	)
	return nil
}

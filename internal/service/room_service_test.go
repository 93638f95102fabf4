package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/cache"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/events"
	"github.com/spec-kit/exchange-chat-service/internal/service"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

type fixture struct {
	rooms    *fakeRoomRepo
	orders   *fakeOrderRepo
	users    *fakeUserRepo
	cache    *memCache
	notifier *recordingNotifier
	msgRepo  *fakeMessageRepo
	assets   *fakeAssets
	roomSvc  *service.RoomService
	msgSvc   *service.MessageService

	creator *domain.User
	mod1    *domain.User
	mod2    *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rooms:    newFakeRoomRepo(),
		orders:   newFakeOrderRepo(),
		cache:    newMemCache(),
		notifier: &recordingNotifier{},
		msgRepo:  newFakeMessageRepo(),
		assets:   &fakeAssets{},
		creator:  &domain.User{ID: "u-creator", Name: "Casey", Role: domain.RoleUser},
		mod1:     &domain.User{ID: "m-one", Name: "Morgan", Role: domain.RoleModerator},
		mod2:     &domain.User{ID: "m-two", Name: "Riley", Role: domain.RoleModerator},
	}
	f.users = newFakeUserRepo(f.creator, f.mod1, f.mod2)

	cfg := testConfig()
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()

	f.msgSvc = service.NewMessageService(cfg, service.MessageDependencies{
		MessageRepo: f.msgRepo,
		UserRepo:    f.users,
		Cache:       f.cache,
		Assets:      f.assets,
		Notifier:    f.notifier,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	f.roomSvc = service.NewRoomService(cfg, service.RoomDependencies{
		RoomRepo:   f.rooms,
		OrderRepo:  f.orders,
		UserRepo:   f.users,
		Cache:      f.cache,
		Notifier:   f.notifier,
		Messenger:  f.msgSvc,
		Cleaner:    f.msgSvc,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	return f
}

func (f *fixture) newOrderRoom(t *testing.T) (*domain.Order, *domain.ChatRoom) {
	t.Helper()
	order := &domain.Order{
		UserID:         f.creator.ID,
		ExchangeMethod: "wire",
		Amount:         250,
		ExchangeRate:   1.08,
		Status:         domain.OrderStatusPending,
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	room, err := f.roomSvc.CreateRoomForOrder(context.Background(), order, f.creator)
	require.NoError(t, err)
	require.Equal(t, domain.RoomStatusWaiting, room.Status)
	return order, room
}

func TestClaimRoomConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	const claimants = 16
	var wg sync.WaitGroup
	errs := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mod := &domain.User{ID: "mod-" + string(rune('a'+i)), Name: "M", Role: domain.RoleModerator}
			_, errs[i] = f.roomSvc.ClaimRoom(context.Background(), room.ID, mod)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.CodeRoomAlreadyAssigned),
			"losers must observe the assignment conflict, got %v", err)
	}
	assert.Equal(t, 1, winners)

	current, err := f.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, current.Status)
	assert.True(t, current.HasModerator())
}

func TestClaimRoomMarksOrderProcessing(t *testing.T) {
	f := newFixture(t)
	order, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.mod1)
	require.NoError(t, err)

	updated, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)
	require.NotNil(t, updated.HandledBy)
	assert.Equal(t, f.mod1.ID, *updated.HandledBy)
}

func TestClaimRoomRequiresModeratorRole(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.creator)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestTransferRoundTrip(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.mod1)
	require.NoError(t, err)

	transferring, err := f.roomSvc.InitiateTransfer(context.Background(), room.ID, f.mod1, f.mod2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusTransferring, transferring.Status)
	require.NotNil(t, transferring.Transfer)
	assert.Equal(t, f.mod2.ID, transferring.Transfer.To)
	assert.Equal(t, domain.TransferPending, transferring.Transfer.Status)

	accepted, err := f.roomSvc.AcceptTransfer(context.Background(), room.ID, f.mod2)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, accepted.Status)
	require.NotNil(t, accepted.Moderator)
	assert.Equal(t, f.mod2.ID, *accepted.Moderator)
	assert.Nil(t, accepted.Transfer)

	actions, err := f.rooms.ListActions(context.Background(), room.ID)
	require.NoError(t, err)
	types := actionTypes(actions)
	assert.Equal(t, []domain.ActionType{
		domain.ActionJoin,
		domain.ActionTransferInitiated,
		domain.ActionTransferCompleted,
	}, types)
}

func TestAcceptTransferWithoutPendingRequest(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.mod1)
	require.NoError(t, err)

	_, err = f.roomSvc.AcceptTransfer(context.Background(), room.ID, f.mod2)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNoPendingTransfer))
}

func TestRejectTransferRestoresModerator(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.mod1)
	require.NoError(t, err)
	_, err = f.roomSvc.InitiateTransfer(context.Background(), room.ID, f.mod1, f.mod2.ID)
	require.NoError(t, err)

	restored, err := f.roomSvc.RejectTransfer(context.Background(), room.ID, f.mod2)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, restored.Status)
	require.NotNil(t, restored.Moderator)
	assert.Equal(t, f.mod1.ID, *restored.Moderator)
	assert.Nil(t, restored.Transfer)

	actions, err := f.rooms.ListActions(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Contains(t, actionTypes(actions), domain.ActionTransferRejected)
}

func TestInitiateTransferByNonOwner(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.ClaimRoom(context.Background(), room.ID, f.mod1)
	require.NoError(t, err)

	_, err = f.roomSvc.InitiateTransfer(context.Background(), room.ID, f.mod2, f.mod1.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestUpdateOrderStatusRoleMatrix(t *testing.T) {
	ctx := context.Background()

	t.Run("user cancels own order", func(t *testing.T) {
		f := newFixture(t)
		_, room := f.newOrderRoom(t)
		order, err := f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCancelled, f.creator, "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	})

	t.Run("user cannot complete", func(t *testing.T) {
		f := newFixture(t)
		_, room := f.newOrderRoom(t)
		_, err := f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCompleted, f.creator, "")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("stranger cannot cancel", func(t *testing.T) {
		f := newFixture(t)
		_, room := f.newOrderRoom(t)
		stranger := &domain.User{ID: "u-other", Name: "Sam", Role: domain.RoleUser}
		_, err := f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCancelled, stranger, "")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("moderator completes", func(t *testing.T) {
		f := newFixture(t)
		_, room := f.newOrderRoom(t)
		order, err := f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCompleted, f.mod1, "funds delivered")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCompleted, order.Status)
		assert.NotNil(t, order.CompletedAt)
	})

	t.Run("moderator cannot cancel", func(t *testing.T) {
		f := newFixture(t)
		_, room := f.newOrderRoom(t)
		_, err := f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCancelled, f.mod1, "")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})
}

func TestUpdateOrderStatusRecordsSystemMessage(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)

	_, err := f.roomSvc.UpdateOrderStatus(context.Background(), room.ID, domain.OrderStatusCompleted, f.mod1, "done")
	require.NoError(t, err)

	page, err := f.msgSvc.Page(context.Background(), room.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	msg := page.Messages[0]
	assert.Equal(t, domain.MessageTypeSystem, msg.Type)
	assert.Equal(t, domain.SystemSender, msg.SenderID)
	assert.Equal(t, "Order status updated to completed: done", msg.Content)
}

func TestRoomSnapshotCacheInvalidation(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)
	ctx := context.Background()

	before, err := f.roomSvc.GetRoomDetails(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, before.HasModerator())
	assert.True(t, f.cache.has(cache.RoomKey(room.ID)))

	_, err = f.roomSvc.ClaimRoom(ctx, room.ID, f.mod1)
	require.NoError(t, err)

	after, err := f.roomSvc.GetRoomDetails(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, after.HasModerator(), "read after claim must reflect the claim")
	assert.Equal(t, domain.RoomStatusActive, after.Status)
}

func TestCleanHistory(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)
	ctx := context.Background()

	_, err := f.roomSvc.ClaimRoom(ctx, room.ID, f.mod1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.msgSvc.AppendText(ctx, room.ID, f.creator.ID, "hello")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := f.msgSvc.AppendImage(ctx, room.ID, f.creator.ID, []byte("img"), "image/png")
		require.NoError(t, err)
	}

	result, err := f.roomSvc.CleanHistory(ctx, room.ID, f.mod1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.MessagesDeleted)
	assert.Equal(t, 2, result.AssetsDeleted)
	assert.Equal(t, 2, f.assets.deleteCount())
	assert.Zero(t, f.msgRepo.count(room.ID))

	// The room record survives the wipe with the action on its trail.
	current, err := f.rooms.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, current.Status)
	actions, err := f.rooms.ListActions(ctx, room.ID)
	require.NoError(t, err)
	assert.Contains(t, actionTypes(actions), domain.ActionCleanHistory)
}

func TestCleanHistoryForbiddenForNonModerator(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)
	ctx := context.Background()

	_, err := f.roomSvc.ClaimRoom(ctx, room.ID, f.mod1)
	require.NoError(t, err)

	_, err = f.roomSvc.CleanHistory(ctx, room.ID, f.mod2)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestAuthorizeJoin(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)
	ctx := context.Background()

	_, err := f.roomSvc.AuthorizeJoin(ctx, room.ID, f.creator)
	assert.NoError(t, err)

	stranger := &domain.User{ID: "u-other", Name: "Sam", Role: domain.RoleUser}
	_, err = f.roomSvc.AuthorizeJoin(ctx, room.ID, stranger)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = f.roomSvc.ClaimRoom(ctx, room.ID, f.mod1)
	require.NoError(t, err)
	_, err = f.roomSvc.AuthorizeJoin(ctx, room.ID, f.mod1)
	assert.NoError(t, err)
}

func TestAvailableModerators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.roomSvc.AvailableModerators(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, f.cache.has(cache.ModeratorListKey()))

	others, err := f.roomSvc.AvailableModerators(ctx, f.mod1.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, f.mod2.ID, others[0].ID)
}

func TestOneOpenRoomPerOrder(t *testing.T) {
	f := newFixture(t)
	order, _ := f.newOrderRoom(t)

	_, err := f.roomSvc.CreateRoomForOrder(context.Background(), order, f.creator)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestEndToEndAuditTrail(t *testing.T) {
	f := newFixture(t)
	_, room := f.newOrderRoom(t)
	ctx := context.Background()

	_, err := f.roomSvc.ClaimRoom(ctx, room.ID, f.mod1)
	require.NoError(t, err)
	_, err = f.roomSvc.InitiateTransfer(ctx, room.ID, f.mod1, f.mod2.ID)
	require.NoError(t, err)
	accepted, err := f.roomSvc.AcceptTransfer(ctx, room.ID, f.mod2)
	require.NoError(t, err)
	assert.Equal(t, f.mod2.ID, *accepted.Moderator)
	assert.Nil(t, accepted.Transfer)

	_, err = f.roomSvc.UpdateOrderStatus(ctx, room.ID, domain.OrderStatusCompleted, f.mod2, "")
	require.NoError(t, err)

	actions, err := f.rooms.ListActions(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActionType{
		domain.ActionJoin,
		domain.ActionTransferInitiated,
		domain.ActionTransferCompleted,
		domain.ActionOrderCompleted,
	}, actionTypes(actions))
}

func actionTypes(actions []domain.ModeratorAction) []domain.ActionType {
	types := make([]domain.ActionType, 0, len(actions))
	for _, action := range actions {
		types = append(types, action.Type)
	}
	return types
}

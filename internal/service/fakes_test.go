package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	"github.com/spec-kit/exchange-chat-service/internal/service"
)

func testConfig() config.Config {
	return config.Config{
		Cache: config.CacheConfig{
			RoomTTLSeconds:       600,
			HistoryTTLSeconds:    1800,
			MessagesTTLSeconds:   300,
			ModeratorsTTLSeconds: 300,
		},
		Chat: config.ChatConfig{
			TypingQuietSeconds: 3,
			DefaultPageSize:    50,
			MaxPageSize:        100,
			SendBufferSize:     16,
			MaxMessageBytes:    65536,
		},
		Assets: config.AssetsConfig{
			BaseURL:      "https://assets.test/chat-images",
			MaxSizeBytes: 1024,
		},
	}
}

// fakeRoomRepo mirrors the conditional-write semantics of the postgres
// implementation in memory: every mutation checks its predicate and appends
// its audit action under one lock.
type fakeRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string]*domain.ChatRoom
	actions []domain.ModeratorAction
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*domain.ChatRoom)}
}

func cloneRoom(room *domain.ChatRoom) *domain.ChatRoom {
	clone := *room
	if room.Moderator != nil {
		m := *room.Moderator
		clone.Moderator = &m
	}
	if room.Transfer != nil {
		t := *room.Transfer
		clone.Transfer = &t
	}
	return &clone
}

func (r *fakeRoomRepo) Create(_ context.Context, room *domain.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.ID = uuid.NewString()
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *fakeRoomRepo) GetByID(_ context.Context, id string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneRoom(room), nil
}

func (r *fakeRoomRepo) GetOpenByOrder(_ context.Context, orderID string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.OrderID == orderID && room.Status != domain.RoomStatusClosed {
			return cloneRoom(room), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRoomRepo) Claim(_ context.Context, roomID, moderatorID string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if room.Moderator == nil && (room.Status == domain.RoomStatusWaiting || room.Status == domain.RoomStatusActive) {
		room.Moderator = &moderatorID
		room.Status = domain.RoomStatusActive
		r.appendLocked(roomID, moderatorID, domain.ActionJoin, "")
		return cloneRoom(room), nil
	}
	if room.HasModerator() || room.Status == domain.RoomStatusClosed {
		return nil, repository.ErrRoomAssigned
	}
	return nil, repository.ErrInvalidRoomState
}

func (r *fakeRoomRepo) InitiateTransfer(_ context.Context, roomID, fromModerator, toModerator string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if room.Moderator == nil || *room.Moderator != fromModerator {
		return nil, repository.ErrNotRoomModerator
	}
	if room.Status != domain.RoomStatusActive {
		return nil, repository.ErrInvalidRoomState
	}
	room.Status = domain.RoomStatusTransferring
	room.Transfer = &domain.TransferRequest{
		From:      fromModerator,
		To:        toModerator,
		Status:    domain.TransferPending,
		CreatedAt: time.Now(),
	}
	r.appendLocked(roomID, fromModerator, domain.ActionTransferInitiated, "")
	return cloneRoom(room), nil
}

func (r *fakeRoomRepo) CompleteTransfer(_ context.Context, roomID, toModerator string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if room.Status != domain.RoomStatusTransferring || room.Transfer == nil ||
		room.Transfer.To != toModerator || room.Transfer.Status != domain.TransferPending {
		return nil, repository.ErrNoPendingTransfer
	}
	room.Moderator = &toModerator
	room.Status = domain.RoomStatusActive
	room.Transfer = nil
	r.appendLocked(roomID, toModerator, domain.ActionTransferCompleted, "")
	return cloneRoom(room), nil
}

func (r *fakeRoomRepo) RejectTransfer(_ context.Context, roomID, toModerator string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if room.Status != domain.RoomStatusTransferring || room.Transfer == nil ||
		room.Transfer.To != toModerator || room.Transfer.Status != domain.TransferPending {
		return nil, repository.ErrNoPendingTransfer
	}
	room.Status = domain.RoomStatusActive
	room.Transfer = nil
	r.appendLocked(roomID, toModerator, domain.ActionTransferRejected, "")
	return cloneRoom(room), nil
}

func (r *fakeRoomRepo) Close(_ context.Context, roomID, actorID string, action domain.ActionType, notes string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if room.Status == domain.RoomStatusClosed {
		return nil, repository.ErrInvalidRoomState
	}
	room.Status = domain.RoomStatusClosed
	r.appendLocked(roomID, actorID, action, notes)
	return cloneRoom(room), nil
}

func (r *fakeRoomRepo) AppendAction(_ context.Context, action *domain.ModeratorAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(action.RoomID, action.ModeratorID, action.Type, action.Notes)
	return nil
}

func (r *fakeRoomRepo) ListActions(_ context.Context, roomID string) ([]domain.ModeratorAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.ModeratorAction
	for _, action := range r.actions {
		if action.RoomID == roomID {
			result = append(result, action)
		}
	}
	return result, nil
}

func (r *fakeRoomRepo) appendLocked(roomID, actorID string, action domain.ActionType, notes string) {
	r.actions = append(r.actions, domain.ModeratorAction{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Type:        action,
		ModeratorID: actorID,
		Notes:       notes,
		CreatedAt:   time.Now(),
	})
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *fakeOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.ID = uuid.NewString()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) SetStatus(_ context.Context, id string, status domain.OrderStatus, notes string, handledBy *string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	order.Status = status
	if notes != "" {
		order.ModeratorNotes = notes
	}
	if handledBy != nil {
		order.HandledBy = handledBy
	}
	if status == domain.OrderStatusCompleted {
		now := time.Now()
		order.CompletedAt = &now
	}
	order.UpdatedAt = time.Now()
	clone := *order
	return &clone, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) ListModerators(_ context.Context, exclude string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if user.Role == domain.RoleModerator && user.ID != exclude {
			result = append(result, *user)
		}
	}
	return result, nil
}

// memCache is an in-process cache.Store with redis-glob prefix patterns.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest any) bool {
	c.mu.Lock()
	data, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.data[key] = data
	c.mu.Unlock()
}

func (c *memCache) Del(_ context.Context, keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.data, key)
	}
	c.mu.Unlock()
}

func (c *memCache) DelPattern(_ context.Context, pattern string) {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	c.mu.Unlock()
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// recordingNotifier captures every push for assertions.
type recordedPush struct {
	Kind    string
	Target  string
	Event   string
	Payload any
	Exclude []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (n *recordingNotifier) SendToUser(userID, event string, payload any) {
	n.record(recordedPush{Kind: "user", Target: userID, Event: event, Payload: payload})
}

func (n *recordingNotifier) BroadcastToRoom(roomID, event string, payload any) {
	n.record(recordedPush{Kind: "room", Target: roomID, Event: event, Payload: payload})
}

func (n *recordingNotifier) NotifyModerators(event string, payload any, exclude ...string) {
	n.record(recordedPush{Kind: "moderators", Event: event, Payload: payload, Exclude: exclude})
}

func (n *recordingNotifier) JoinRoom(userID, roomID string) {
	n.record(recordedPush{Kind: "join", Target: userID + ":" + roomID})
}

func (n *recordingNotifier) LeaveRoom(userID, roomID string) {
	n.record(recordedPush{Kind: "leave", Target: userID + ":" + roomID})
}

func (n *recordingNotifier) record(p recordedPush) {
	n.mu.Lock()
	n.pushes = append(n.pushes, p)
	n.mu.Unlock()
}

func (n *recordingNotifier) eventCount(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, p := range n.pushes {
		if p.Event == event {
			count++
		}
	}
	return count
}

// fakeMessageRepo is an append-only in-memory message log.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	seq      int
	failNext error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.seq++
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListPage(_ context.Context, roomID string, page, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if page < 1 {
		page = 1
	}
	var inRoom []domain.Message
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].RoomID == roomID {
			inRoom = append(inRoom, r.messages[i])
		}
	}
	offset := (page - 1) * limit
	if offset >= len(inRoom) {
		return nil, nil
	}
	end := offset + limit
	if end > len(inRoom) {
		end = len(inRoom)
	}
	result := make([]domain.Message, end-offset)
	copy(result, inRoom[offset:end])
	return result, nil
}

func (r *fakeMessageRepo) ListImagesByRoom(_ context.Context, roomID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if msg.RoomID == roomID && msg.Type == domain.MessageTypeImage && msg.Image != nil {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) DeleteByRoom(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Message
	var removed int64
	for _, msg := range r.messages {
		if msg.RoomID == roomID {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return removed, nil
}

func (r *fakeMessageRepo) count(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		if msg.RoomID == roomID {
			count++
		}
	}
	return count
}

// fakeAssets stores nothing; it counts uploads and deletes and can be told to
// fail.
type fakeAssets struct {
	mu         sync.Mutex
	uploaded   int
	deleted    []string
	failUpload bool
	failDelete bool
}

var errAssetStorage = errors.New("asset storage down")

func (a *fakeAssets) Upload(_ context.Context, data []byte, mimeType string) (*service.Asset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failUpload {
		return nil, errAssetStorage
	}
	a.uploaded++
	id := uuid.NewString()
	return &service.Asset{
		ID:       id,
		URL:      "https://assets.test/chat-images/" + id,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

func (a *fakeAssets) Delete(_ context.Context, assetID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failDelete {
		return errAssetStorage
	}
	a.deleted = append(a.deleted, assetID)
	return nil
}

func (a *fakeAssets) deleteCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deleted)
}

package hub

import (
	"sync"

	"github.com/samber/lo"
)

// Registry tracks live connections by user and by room. It is created at
// process start; entries are created at connect and torn down at disconnect.
// All iteration happens on snapshots so a slow client cannot hold the lock.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]map[Client]struct{}
	byRoom  map[string]map[Client]struct{}
	inRooms map[Client]map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser:  make(map[string]map[Client]struct{}),
		byRoom:  make(map[string]map[Client]struct{}),
		inRooms: make(map[Client]map[string]struct{}),
	}
}

// Register adds a connection. Returns true when this is the user's first live
// connection.
func (r *Registry) Register(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := c.User().ID
	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[Client]struct{})
		r.byUser[userID] = conns
	}
	first := len(conns) == 0
	conns[c] = struct{}{}
	r.inRooms[c] = make(map[string]struct{})
	return first
}

// Unregister removes a connection and all its room memberships. Returns true
// when the user has no remaining connections.
func (r *Registry) Unregister(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := c.User().ID
	for roomID := range r.inRooms[c] {
		delete(r.byRoom[roomID], c)
		if len(r.byRoom[roomID]) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	delete(r.inRooms, c)

	if conns, ok := r.byUser[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.byUser, userID)
			return true
		}
	}
	return false
}

// JoinRoom adds every live connection of the user to the room group.
func (r *Registry) JoinRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.byUser[userID] {
		r.joinLocked(c, roomID)
	}
}

// LeaveRoom removes every live connection of the user from the room group.
func (r *Registry) LeaveRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.byUser[userID] {
		delete(r.byRoom[roomID], c)
		delete(r.inRooms[c], roomID)
	}
	if len(r.byRoom[roomID]) == 0 {
		delete(r.byRoom, roomID)
	}
}

// JoinClient adds a single connection to the room group.
func (r *Registry) JoinClient(c Client, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(c, roomID)
}

func (r *Registry) joinLocked(c Client, roomID string) {
	room := r.byRoom[roomID]
	if room == nil {
		room = make(map[Client]struct{})
		r.byRoom[roomID] = room
	}
	room[c] = struct{}{}
	if r.inRooms[c] == nil {
		r.inRooms[c] = make(map[string]struct{})
	}
	r.inRooms[c][roomID] = struct{}{}
}

// SendToUser delivers to every live connection of one user.
func (r *Registry) SendToUser(userID, event string, payload any) {
	for _, c := range r.userConns(userID) {
		c.Push(Frame{Event: event, Data: payload})
	}
}

// BroadcastToRoom delivers to every connection joined to the room.
func (r *Registry) BroadcastToRoom(roomID, event string, payload any) {
	r.mu.RLock()
	targets := lo.Keys(r.byRoom[roomID])
	r.mu.RUnlock()

	for _, c := range targets {
		c.Push(Frame{Event: event, Data: payload})
	}
}

// NotifyModerators delivers to every connected moderator except the excluded
// ids.
func (r *Registry) NotifyModerators(event string, payload any, exclude ...string) {
	r.mu.RLock()
	var targets []Client
	for userID, conns := range r.byUser {
		if lo.Contains(exclude, userID) {
			continue
		}
		for c := range conns {
			if c.User().Role.CanModerate() {
				targets = append(targets, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Push(Frame{Event: event, Data: payload})
	}
}

// Broadcast delivers to every live connection.
func (r *Registry) Broadcast(event string, payload any) {
	r.mu.RLock()
	var targets []Client
	for _, conns := range r.byUser {
		targets = append(targets, lo.Keys(conns)...)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Push(Frame{Event: event, Data: payload})
	}
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) userConns(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byUser[userID])
}

package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/exchange-chat-service/internal/service"
)

// TypingTracker keeps ephemeral per-(room,user) typing state. Typing turns on
// immediately and expires after the quiet period unless refreshed; each new
// typing event replaces the previous timer for that pair. State lives only in
// this process and is lost on restart.
type TypingTracker struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	quiet    time.Duration
	notifier service.Notifier
}

// NewTypingTracker constructs the tracker.
func NewTypingTracker(quiet time.Duration, notifier service.Notifier) *TypingTracker {
	return &TypingTracker{
		timers:   make(map[string]*time.Timer),
		quiet:    quiet,
		notifier: notifier,
	}
}

// Set updates typing state for the user in the room and broadcasts it.
func (t *TypingTracker) Set(roomID, userID, name string, typing bool) {
	key := typingKey(roomID, userID)

	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	if typing {
		var timer *time.Timer
		timer = time.AfterFunc(t.quiet, func() {
			t.expire(key, timer, roomID, userID, name)
		})
		t.timers[key] = timer
	}
	t.mu.Unlock()

	t.broadcast(roomID, userID, name, typing)
}

// ClearUser drops every typing entry for the user, broadcasting the stop.
// Called on disconnect.
func (t *TypingTracker) ClearUser(userID string) {
	suffix := "|" + userID

	t.mu.Lock()
	var rooms []string
	for key, timer := range t.timers {
		if strings.HasSuffix(key, suffix) {
			timer.Stop()
			delete(t.timers, key)
			rooms = append(rooms, strings.TrimSuffix(key, suffix))
		}
	}
	t.mu.Unlock()

	for _, roomID := range rooms {
		t.broadcast(roomID, userID, "", false)
	}
}

func (t *TypingTracker) expire(key string, timer *time.Timer, roomID, userID, name string) {
	t.mu.Lock()
	// A refresh may have replaced this timer between firing and locking.
	if current, ok := t.timers[key]; !ok || current != timer {
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.broadcast(roomID, userID, name, false)
}

func (t *TypingTracker) broadcast(roomID, userID, name string, typing bool) {
	t.notifier.BroadcastToRoom(roomID, service.EventUserTyping, map[string]any{
		"roomId":   roomID,
		"userId":   userID,
		"name":     name,
		"isTyping": typing,
	})
}

func typingKey(roomID, userID string) string {
	return roomID + "|" + userID
}

package cache

import "fmt"

// Key builders. Every mutation invalidates by prefix, so all keys derived
// from a room must share the "room:<id>" prefix.

// RoomKey is the cache key for a room snapshot.
func RoomKey(roomID string) string {
	return "room:" + roomID
}

// RoomHistoryKey is the cache key for a room's action log snapshot.
func RoomHistoryKey(roomID string) string {
	return RoomKey(roomID) + ":history"
}

// MessagesKey is the cache key for one page of room messages. A page is a
// deterministic function of (room, page, limit), so both parameters are part
// of the key.
func MessagesKey(roomID string, page, limit int) string {
	return fmt.Sprintf("%s:messages:%d:%d", RoomKey(roomID), page, limit)
}

// MessagesPattern matches every cached message page of a room.
func MessagesPattern(roomID string) string {
	return RoomKey(roomID) + ":messages:*"
}

// RoomPattern matches the room snapshot and everything derived from it.
func RoomPattern(roomID string) string {
	return RoomKey(roomID) + "*"
}

// ModeratorListKey is the cache key for the moderator-availability list.
func ModeratorListKey() string {
	return "moderators:available"
}

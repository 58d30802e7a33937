package chat

import (
	"sort"
	"time"
)

// TypingEntry identifies one user typing in one room.
type TypingEntry struct {
	RoomID string
	UserID string
}

// TypingTracker keeps the per-room set of users composing a message.
// Entries older than ttl are treated as stopped; a zero ttl disables expiry.
type TypingTracker struct {
	rooms map[string]map[string]time.Time // roomID -> userID -> last start
	ttl   time.Duration
	now   func() time.Time
}

// NewTypingTracker creates a tracker.
func NewTypingTracker(ttl time.Duration, now func() time.Time) *TypingTracker {
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{
		rooms: make(map[string]map[string]time.Time),
		ttl:   ttl,
		now:   now,
	}
}

// Start adds userID to the room's typing set. Repeated starts only refresh
// the expiry.
func (t *TypingTracker) Start(roomID, userID string) {
	users, ok := t.rooms[roomID]
	if !ok {
		users = make(map[string]time.Time)
		t.rooms[roomID] = users
	}
	users[userID] = t.now()
}

// Stop removes userID from the room's typing set. It reports whether the
// user was typing.
func (t *TypingTracker) Stop(roomID, userID string) bool {
	users, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, typing := users[userID]; !typing {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// StopAll removes userID from every room and returns the affected rooms.
func (t *TypingTracker) StopAll(userID string) []string {
	var rooms []string
	for roomID := range t.rooms {
		if t.Stop(roomID, userID) {
			rooms = append(rooms, roomID)
		}
	}
	sort.Strings(rooms)
	return rooms
}

// ListTyping returns the users currently typing in roomID, sorted.
func (t *TypingTracker) ListTyping(roomID string) []string {
	now := t.now()
	users := make([]string, 0, len(t.rooms[roomID]))
	for userID, started := range t.rooms[roomID] {
		if !t.expired(started, now) {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Expire removes every entry whose ttl elapsed and returns them.
func (t *TypingTracker) Expire() []TypingEntry {
	if t.ttl <= 0 {
		return nil
	}
	now := t.now()
	var expired []TypingEntry
	for roomID, users := range t.rooms {
		for userID, started := range users {
			if t.expired(started, now) {
				expired = append(expired, TypingEntry{RoomID: roomID, UserID: userID})
			}
		}
	}
	for _, e := range expired {
		t.Stop(e.RoomID, e.UserID)
	}
	return expired
}

func (t *TypingTracker) expired(started, now time.Time) bool {
	return t.ttl > 0 && now.Sub(started) >= t.ttl
}

package chat

import (
	"time"

	"github.com/google/uuid"

	domain "github.com/example/chat-engine/domain/chat"
)

// RoomDirectory owns room lifecycle and membership. Rooms are kept in
// creation order so listings are stable.
type RoomDirectory struct {
	rooms map[string]*domain.Room
	order []string
	now   func() time.Time
	newID func() string
}

// NewRoomDirectory creates an empty directory.
func NewRoomDirectory(now func() time.Time) *RoomDirectory {
	if now == nil {
		now = time.Now
	}
	return &RoomDirectory{
		rooms: make(map[string]*domain.Room),
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Create always succeeds. The owner is always a participant and duplicates
// are dropped. Private rooms created here are not deduplicated against
// existing pairs; use GetOrCreatePrivateRoom for that.
func (d *RoomDirectory) Create(ownerID, name string, roomType domain.RoomType, participants []string) *domain.Room {
	members := make([]string, 0, len(participants)+1)
	seen := make(map[string]bool, len(participants)+1)
	for _, id := range append([]string{ownerID}, participants...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	room := &domain.Room{
		ID:           d.newID(),
		Name:         name,
		Type:         roomType,
		OwnerID:      ownerID,
		Participants: members,
		CreatedAt:    d.now(),
	}
	d.rooms[room.ID] = room
	d.order = append(d.order, room.ID)
	return room
}

// GetOrCreatePrivateRoom returns the private room shared by a and b,
// creating it with a as owner when none exists.
func (d *RoomDirectory) GetOrCreatePrivateRoom(a, b string) (room *domain.Room, created bool) {
	for _, id := range d.order {
		r := d.rooms[id]
		if r.Type == domain.RoomPrivate && len(r.Participants) == 2 &&
			r.HasParticipant(a) && r.HasParticipant(b) {
			return r, false
		}
	}
	return d.Create(a, "", domain.RoomPrivate, []string{b}), true
}

// AddMember returns false if the room is absent or userID already participates.
func (d *RoomDirectory) AddMember(roomID, userID string) bool {
	r, ok := d.rooms[roomID]
	if !ok || r.HasParticipant(userID) {
		return false
	}
	r.Participants = append(r.Participants, userID)
	return true
}

// RemoveMember returns false if the room is absent or userID is not a member.
func (d *RoomDirectory) RemoveMember(roomID, userID string) bool {
	r, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	for i, p := range r.Participants {
		if p == userID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the live room. Callers must Clone before releasing the lock.
func (d *RoomDirectory) Get(roomID string) (*domain.Room, bool) {
	r, ok := d.rooms[roomID]
	return r, ok
}

// ListForUser returns the rooms userID participates in.
func (d *RoomDirectory) ListForUser(userID string) []*domain.Room {
	var rooms []*domain.Room
	for _, id := range d.order {
		if r := d.rooms[id]; r.HasParticipant(userID) {
			rooms = append(rooms, r)
		}
	}
	return rooms
}

// setLastMessage updates the denormalized last-message pointer.
func (d *RoomDirectory) setLastMessage(roomID string, msg *domain.Message) {
	if r, ok := d.rooms[roomID]; ok {
		r.LastMessage = msg
	}
}

// Len returns the number of rooms.
func (d *RoomDirectory) Len() int {
	return len(d.rooms)
}

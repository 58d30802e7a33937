package chat

import "time"

// Role is the kind of account behind a connection.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleEmployee
}

// RoomType distinguishes one-to-one rooms from group rooms.
type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	return t == RoomPrivate || t == RoomGroup
}

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage || t == MessageFile
}

// PresenceStatus is a user's connectivity state.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
)

// Identity is the already-authenticated user bound to a connection at join time.
type Identity struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"userRole"`
	DisplayName string `json:"userName"`
}

// Presence is the connectivity record of one user.
type Presence struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// Room represents a chat room.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         RoomType  `json:"type"`
	OwnerID      string    `json:"ownerId"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
}

// HasParticipant reports whether userID belongs to the room.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out beyond the owner's lock.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	if r.LastMessage != nil {
		last := *r.LastMessage
		c.LastMessage = &last
	}
	return &c
}

// Message represents a chat message. Exactly one of RecipientID and RoomID
// is set: direct messages keep the recipient even though they are stored
// under the pair's private room.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	SenderRole  Role        `json:"senderRole"`
	RecipientID string      `json:"recipientId,omitempty"`
	RoomID      string      `json:"roomId,omitempty"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	Timestamp   time.Time   `json:"timestamp"`
	IsRead      bool        `json:"isRead"`
}

// Draft is a message before the store assigns id, timestamp and read state.
type Draft struct {
	SenderID    string
	SenderName  string
	SenderRole  Role
	RecipientID string
	RoomID      string
	Content     string
	Type        MessageType
}

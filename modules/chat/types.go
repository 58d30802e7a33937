package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	domain "github.com/example/chat-engine/domain/chat"
)

// Request-reply service names registered by the chat module.
const (
	ServiceListRoomsForUser   = "list-rooms-for-user"
	ServiceGetRoom            = "get-room"
	ServiceGetRoomMessages    = "get-room-messages"
	ServiceCreateRoom         = "create-room"
	ServiceAddMember          = "add-member"
	ServiceRemoveMember       = "remove-member"
	ServiceListOnlinePresence = "list-online-presence"
	ServiceSendToUser         = "send-to-user"
	ServiceSendToRoom         = "send-to-room"
)

// ValidateRoomName validates the name of a group room.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name cannot be empty: %w", domain.ErrInvalidPayload)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return fmt.Errorf("room name exceeds %d characters: %w", MaxRoomNameLength, domain.ErrInvalidPayload)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters: %w", domain.ErrInvalidPayload)
	}
	return nil
}

// ValidateMessage validates message content. Whitespace-only content is
// rejected as empty.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return domain.ErrEmptyContent
	}
	if len(content) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d bytes: %w", MaxMessageLength, domain.ErrInvalidPayload)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid characters: %w", domain.ErrInvalidPayload)
	}
	return nil
}

// ListRoomsForUserRequest is the request for list-rooms-for-user.
type ListRoomsForUserRequest struct {
	UserID string `json:"userId"`
}

// ListRoomsResponse carries a list of rooms.
type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
	Error *domain.Error `json:"error,omitempty"`
}

// GetRoomRequest is the request for get-room.
type GetRoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomResponse carries a single room.
type RoomResponse struct {
	Room  *domain.Room  `json:"room,omitempty"`
	Error *domain.Error `json:"error,omitempty"`
}

// GetRoomMessagesRequest is the request for get-room-messages.
type GetRoomMessagesRequest struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// MessagesResponse carries a newest-first page of messages.
type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Error    *domain.Error    `json:"error,omitempty"`
}

// CreateRoomRequest is the request for create-room.
type CreateRoomRequest struct {
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	Type         domain.RoomType `json:"type"`
	Participants []string        `json:"participants"`
}

// MembershipRequest is the request for add-member and remove-member.
type MembershipRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// AckResponse acknowledges a mutation.
type AckResponse struct {
	Success bool          `json:"success"`
	Error   *domain.Error `json:"error,omitempty"`
}

// ListOnlinePresenceRequest is the request for list-online-presence.
type ListOnlinePresenceRequest struct{}

// PresenceListResponse carries online presence records.
type PresenceListResponse struct {
	Users []domain.Presence `json:"users"`
	Count int               `json:"count"`
}

// SendToUserRequest is the request for send-to-user.
type SendToUserRequest struct {
	UserID  string          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SendToUserResponse reports whether the user had a live connection.
type SendToUserResponse struct {
	Delivered bool          `json:"delivered"`
	Error     *domain.Error `json:"error,omitempty"`
}

// SendToRoomRequest is the request for send-to-room.
type SendToRoomRequest struct {
	RoomID  string          `json:"roomId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// DirectMessageAdmin marks a message:direct sent on behalf of an
// administrator.
const DirectMessageAdmin = "admin"

// DirectMessagePayload is the body of message:direct.
type DirectMessagePayload struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
}

// errorOf converts err into the wire error, or nil.
func errorOf(err error) *domain.Error {
	if err == nil {
		return nil
	}
	return domain.AsError(err)
}

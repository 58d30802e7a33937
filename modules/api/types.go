package api

import (
	"encoding/json"

	domain "github.com/example/chat-engine/domain/chat"
)

// SuccessResponse is the envelope for successful API calls.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Success bool          `json:"success"`
	Error   *domain.Error `json:"error"`
}

// CreateRoomRequest is the body of POST /api/v1/rooms.
type CreateRoomRequest struct {
	OwnerID      string   `json:"ownerId"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
}

// MemberRequest is the body of the room membership routes.
type MemberRequest struct {
	UserID string `json:"userId"`
}

// DirectMessageRequest is the body of POST /api/v1/messages/direct.
type DirectMessageRequest struct {
	UserID     string `json:"userId"`
	Message    string `json:"message"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
}

// DirectMessageResponse reports whether the recipient was online.
type DirectMessageResponse struct {
	Delivered bool `json:"delivered"`
}

// BroadcastRequest is the body of POST /api/v1/rooms/:roomId/broadcast.
type BroadcastRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MessagesPage is a newest-first page of a room's history.
type MessagesPage struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ActiveUsersResponse lists online users.
type ActiveUsersResponse struct {
	Users []domain.Presence `json:"users"`
	Count int               `json:"count"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// inboundFrame is a client WebSocket frame.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

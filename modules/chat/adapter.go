package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-engine/domain/chat"
)

// ChatPort is the collaborator surface of the chat engine used by driving
// adapters such as the HTTP API.
type ChatPort interface {
	ListRoomsForUser(ctx context.Context, userID string) ([]domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetRoomMessages(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error)
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	ListOnlinePresence(ctx context.Context) ([]domain.Presence, error)
	SendToUser(ctx context.Context, userID, event string, payload any) (bool, error)
	SendToRoom(ctx context.Context, roomID, event string, payload any) error
}

// ChatAdapter implements ChatPort over the chat module's request-reply
// services.
type ChatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &ChatAdapter{container: container}
}

func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s service call failed: %w", service, err)
	}
	return nil
}

// remoteError restores the sentinel for a wire error so callers can match it
// with errors.Is.
func remoteError(e *domain.Error) error {
	if e == nil {
		return nil
	}
	return domain.FromCode(e.Code)
}

// ListRoomsForUser returns the rooms a user participates in.
func (a *ChatAdapter) ListRoomsForUser(ctx context.Context, userID string) ([]domain.Room, error) {
	req := ListRoomsForUserRequest{UserID: userID}
	var resp ListRoomsResponse
	if err := callService(ctx, a.container, ServiceListRoomsForUser, &req, &resp); err != nil {
		return nil, err
	}
	if err := remoteError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// GetRoom retrieves a room by ID.
func (a *ChatAdapter) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp RoomResponse
	if err := callService(ctx, a.container, ServiceGetRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := remoteError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// GetRoomMessages returns a newest-first page of a room's history.
func (a *ChatAdapter) GetRoomMessages(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error) {
	req := GetRoomMessagesRequest{RoomID: roomID, Limit: limit, Offset: offset}
	var resp MessagesResponse
	if err := callService(ctx, a.container, ServiceGetRoomMessages, &req, &resp); err != nil {
		return nil, err
	}
	if err := remoteError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateRoom creates a room.
func (a *ChatAdapter) CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	var resp RoomResponse
	if err := callService(ctx, a.container, ServiceCreateRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := remoteError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// AddMember adds a user to a room.
func (a *ChatAdapter) AddMember(ctx context.Context, roomID, userID string) error {
	req := MembershipRequest{RoomID: roomID, UserID: userID}
	var resp AckResponse
	if err := callService(ctx, a.container, ServiceAddMember, &req, &resp); err != nil {
		return err
	}
	return remoteError(resp.Error)
}

// RemoveMember removes a user from a room.
func (a *ChatAdapter) RemoveMember(ctx context.Context, roomID, userID string) error {
	req := MembershipRequest{RoomID: roomID, UserID: userID}
	var resp AckResponse
	if err := callService(ctx, a.container, ServiceRemoveMember, &req, &resp); err != nil {
		return err
	}
	return remoteError(resp.Error)
}

// ListOnlinePresence returns the presence of every online user.
func (a *ChatAdapter) ListOnlinePresence(ctx context.Context) ([]domain.Presence, error) {
	req := ListOnlinePresenceRequest{}
	var resp PresenceListResponse
	if err := callService(ctx, a.container, ServiceListOnlinePresence, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// SendToUser emits an event to a user's live connection.
func (a *ChatAdapter) SendToUser(ctx context.Context, userID, event string, payload any) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %v: %w", err, domain.ErrInvalidPayload)
	}
	req := SendToUserRequest{UserID: userID, Event: event, Payload: raw}
	var resp SendToUserResponse
	if err := callService(ctx, a.container, ServiceSendToUser, &req, &resp); err != nil {
		return false, err
	}
	if err := remoteError(resp.Error); err != nil {
		return false, err
	}
	return resp.Delivered, nil
}

// SendToRoom emits an event to every subscriber of a room.
func (a *ChatAdapter) SendToRoom(ctx context.Context, roomID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %v: %w", err, domain.ErrInvalidPayload)
	}
	req := SendToRoomRequest{RoomID: roomID, Event: event, Payload: raw}
	var resp AckResponse
	if err := callService(ctx, a.container, ServiceSendToRoom, &req, &resp); err != nil {
		return err
	}
	return remoteError(resp.Error)
}

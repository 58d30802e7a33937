package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/example/chat-engine/domain/chat"
	"github.com/example/chat-engine/events"
)

// Inbound event names.
const (
	EventUserJoin    = "user:join"
	EventMessageSend = "message:send"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventTypingStart = "typing:start"
	EventDisconnect  = "disconnect"
)

// SendPayload is the body of message:send.
type SendPayload struct {
	RecipientID string             `json:"recipientId,omitempty"`
	RoomID      string             `json:"roomId,omitempty"`
	Content     string             `json:"content"`
	Type        domain.MessageType `json:"type,omitempty"`
}

// ReadPayload announces a read receipt to the room.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
}

// TypingPayload is the body of typing:user and typing:stop.
type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	RoomID   string `json:"roomId"`
}

// RoomMessagesPayload replays recent history on room:join.
type RoomMessagesPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
}

// RoomCreatedPayload announces a new room to its online participants.
type RoomCreatedPayload struct {
	Room *domain.Room `json:"room"`
}

// MembershipPayload is the body of room:user_joined and room:user_left.
type MembershipPayload struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type connState int

const (
	stateUnauthenticated connState = iota
	stateJoined
)

type session struct {
	state    connState
	identity domain.Identity
}

// Dispatcher runs the per-connection state machine
// (Unauthenticated -> Joined -> Closed) and routes inbound events. Sessions
// share the Service lock; a closed connection simply has no session.
type Dispatcher struct {
	svc      *Service
	sessions map[string]*session
	handlers map[string]func(connID string, sess *session, data json.RawMessage, ob *outbox) error
}

// NewDispatcher creates a dispatcher over svc.
func NewDispatcher(svc *Service) *Dispatcher {
	d := &Dispatcher{
		svc:      svc,
		sessions: make(map[string]*session),
	}
	d.handlers = map[string]func(string, *session, json.RawMessage, *outbox) error{
		EventMessageSend: d.handleSend,
		EventMessageRead: d.handleRead,
		EventRoomJoin:    d.handleRoomJoin,
		EventRoomLeave:   d.handleRoomLeave,
		EventTypingStart: d.handleTypingStart,
		EventTypingStop:  d.handleTypingStop,
	}
	return d
}

// Connect opens an unauthenticated session for connID.
func (d *Dispatcher) Connect(connID string) {
	d.svc.view(func() {
		if _, ok := d.sessions[connID]; !ok {
			d.sessions[connID] = &session{state: stateUnauthenticated}
		}
	})
}

// Handle processes one inbound event. Failures are reported to connID as
// error:chat and never affect other connections.
func (d *Dispatcher) Handle(connID, event string, data json.RawMessage) {
	if event == EventDisconnect {
		d.Disconnect(connID)
		return
	}

	err := d.svc.update(func(ob *outbox) error {
		sess, ok := d.sessions[connID]
		if !ok {
			return fmt.Errorf("connection %s is closed: %w", connID, domain.ErrNotJoined)
		}
		if event == EventUserJoin {
			return d.handleJoin(connID, sess, data, ob)
		}
		if sess.state != stateJoined {
			return fmt.Errorf("%s before join: %w", event, domain.ErrNotJoined)
		}
		handler, known := d.handlers[event]
		if !known {
			return fmt.Errorf("unknown event %q: %w", event, domain.ErrInvalidPayload)
		}
		return handler(connID, sess, data, ob)
	})
	if err != nil {
		d.reportError(connID, event, err)
	}
}

// Reject reports a transport-level failure, such as an undecodable frame,
// to connID.
func (d *Dispatcher) Reject(connID string, err error) {
	d.reportError(connID, "", err)
}

func (d *Dispatcher) reportError(connID, event string, err error) {
	coded := domain.AsError(err)
	if coded.Code == domain.CodeInternal {
		d.svc.logger.Error("Chat event failed", "connID", connID, "event", event, "error", err)
	} else {
		d.svc.logger.Debug("Chat event rejected", "connID", connID, "event", event, "code", string(coded.Code))
	}
	d.svc.currentEmitter().Emit(connID, EventChatError, coded)
}

// Disconnect tears down connID. Registry and presence change together, and
// only when the user's registered connection is still connID: a superseded
// connection closing does not take a reconnected user offline.
func (d *Dispatcher) Disconnect(connID string) {
	_ = d.svc.update(func(ob *outbox) error {
		sess, ok := d.sessions[connID]
		if !ok {
			return nil
		}
		delete(d.sessions, connID)
		if sess.state != stateJoined {
			return nil
		}

		s := d.svc
		userID := sess.identity.UserID
		if current, ok := s.registry.Lookup(userID); !ok || current != connID {
			return nil
		}

		s.registry.Unregister(userID)
		p := s.presence.MarkOffline(userID)
		ob.toAll(EventUserStatus, p, connID)
		ob.publish(events.PresenceChangedEvent{Presence: p})

		for _, roomID := range s.typing.StopAll(userID) {
			ob.toRoom(roomID, EventTypingStop, TypingPayload{
				UserID:   userID,
				UserName: sess.identity.DisplayName,
				RoomID:   roomID,
			}, connID)
		}
		s.logger.Info("User disconnected", "userID", userID, "connID", connID)
		return nil
	})
}

func (d *Dispatcher) handleJoin(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	if sess.state == stateJoined {
		return fmt.Errorf("connection already joined as %s: %w", sess.identity.UserID, domain.ErrInvalidPayload)
	}
	var id domain.Identity
	if err := decode(data, &id); err != nil {
		return err
	}
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return fmt.Errorf("userId is required: %w", domain.ErrInvalidPayload)
	}
	if id.Role == "" {
		id.Role = domain.RoleEmployee
	}
	if !id.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", id.Role, domain.ErrInvalidPayload)
	}

	s := d.svc
	sess.state = stateJoined
	sess.identity = id
	if previous := s.registry.Register(id.UserID, connID); previous != "" && previous != connID {
		s.logger.Info("User reconnected", "userID", id.UserID, "previousConnID", previous, "connID", connID)
	}
	p := s.presence.MarkOnline(id.UserID)

	rooms := s.rooms.ListForUser(id.UserID)
	roomIDs := make([]string, 0, len(rooms))
	for _, r := range rooms {
		roomIDs = append(roomIDs, r.ID)
	}
	if len(roomIDs) > 0 {
		s.emitter.Subscribe(connID, roomIDs...)
	}

	ob.toAll(EventUserStatus, p, connID)
	ob.publish(events.PresenceChangedEvent{Presence: p})
	s.logger.Info("User joined", "userID", id.UserID, "role", string(id.Role), "rooms", len(roomIDs))
	return nil
}

func (d *Dispatcher) handleSend(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	var in SendPayload
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := ValidateMessage(in.Content); err != nil {
		return err
	}
	if in.Type == "" {
		in.Type = domain.MessageText
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown message type %q: %w", in.Type, domain.ErrInvalidPayload)
	}

	s := d.svc
	sender := sess.identity
	draft := domain.Draft{
		SenderID:   sender.UserID,
		SenderName: sender.DisplayName,
		SenderRole: sender.Role,
		Content:    in.Content,
		Type:       in.Type,
	}

	var roomID string
	switch {
	case in.RoomID != "":
		room, ok := s.rooms.Get(in.RoomID)
		if !ok {
			return fmt.Errorf("room %s: %w", in.RoomID, domain.ErrRoomNotFound)
		}
		if !room.HasParticipant(sender.UserID) {
			return fmt.Errorf("send to room %s: %w", in.RoomID, domain.ErrNotParticipant)
		}
		roomID = room.ID
		draft.RoomID = room.ID
		s.emitter.Subscribe(connID, roomID)
	case in.RecipientID != "":
		if in.RecipientID == sender.UserID {
			return fmt.Errorf("cannot message yourself: %w", domain.ErrInvalidPayload)
		}
		room, created := s.rooms.GetOrCreatePrivateRoom(sender.UserID, in.RecipientID)
		roomID = room.ID
		draft.RecipientID = in.RecipientID
		s.emitter.Subscribe(connID, roomID)
		s.subscribeOnline(roomID, []string{in.RecipientID})
		if created {
			ob.publish(events.RoomCreatedEvent{Room: *room.Clone(), Timestamp: room.CreatedAt})
		}
	default:
		return fmt.Errorf("roomId or recipientId is required: %w", domain.ErrInvalidPayload)
	}

	msg, err := s.messages.Append(roomID, draft)
	if err != nil {
		return err
	}
	stored := *msg

	ob.toRoom(roomID, EventMessageNew, stored, "")
	s.typing.Stop(roomID, sender.UserID)
	ob.toRoom(roomID, EventTypingStop, TypingPayload{
		UserID:   sender.UserID,
		UserName: sender.DisplayName,
		RoomID:   roomID,
	}, connID)
	ob.toConn(connID, EventMessageDelivered, stored.ID)
	ob.publish(events.MessageStoredEvent{RoomID: roomID, Message: stored})
	return nil
}

func (d *Dispatcher) handleRead(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	messageID, err := decodeID(data, "messageId")
	if err != nil {
		return err
	}
	roomID, ok := d.svc.messages.MarkRead(messageID, sess.identity.UserID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrMessageNotFound)
	}
	ob.toRoom(roomID, EventMessageRead, ReadPayload{
		MessageID: messageID,
		RoomID:    roomID,
		UserID:    sess.identity.UserID,
	}, connID)
	return nil
}

func (d *Dispatcher) handleRoomJoin(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	room, err := d.participantRoom(sess, data)
	if err != nil {
		return err
	}
	d.svc.emitter.Subscribe(connID, room.ID)
	ob.toConn(connID, EventRoomMessages, RoomMessagesPayload{
		RoomID:   room.ID,
		Messages: d.svc.messages.Page(room.ID, d.svc.opts.JoinHistory, 0),
	})
	return nil
}

func (d *Dispatcher) handleRoomLeave(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	roomID, err := decodeID(data, "roomId")
	if err != nil {
		return err
	}
	s := d.svc
	s.emitter.Unsubscribe(connID, roomID)
	if s.typing.Stop(roomID, sess.identity.UserID) {
		ob.toRoom(roomID, EventTypingStop, TypingPayload{
			UserID:   sess.identity.UserID,
			UserName: sess.identity.DisplayName,
			RoomID:   roomID,
		}, connID)
	}
	return nil
}

func (d *Dispatcher) handleTypingStart(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	room, err := d.participantRoom(sess, data)
	if err != nil {
		return err
	}
	d.svc.typing.Start(room.ID, sess.identity.UserID)
	ob.toRoom(room.ID, EventTypingUser, TypingPayload{
		UserID:   sess.identity.UserID,
		UserName: sess.identity.DisplayName,
		RoomID:   room.ID,
	}, connID)
	return nil
}

func (d *Dispatcher) handleTypingStop(connID string, sess *session, data json.RawMessage, ob *outbox) error {
	room, err := d.participantRoom(sess, data)
	if err != nil {
		return err
	}
	d.svc.typing.Stop(room.ID, sess.identity.UserID)
	ob.toRoom(room.ID, EventTypingStop, TypingPayload{
		UserID:   sess.identity.UserID,
		UserName: sess.identity.DisplayName,
		RoomID:   room.ID,
	}, connID)
	return nil
}

// participantRoom resolves the room named by data and checks that the
// session's user belongs to it.
func (d *Dispatcher) participantRoom(sess *session, data json.RawMessage) (*domain.Room, error) {
	roomID, err := decodeID(data, "roomId")
	if err != nil {
		return nil, err
	}
	room, ok := d.svc.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	if !room.HasParticipant(sess.identity.UserID) {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotParticipant)
	}
	return room, nil
}

// SessionCount returns the number of open connections.
func (d *Dispatcher) SessionCount() int {
	n := 0
	d.svc.view(func() { n = len(d.sessions) })
	return n
}

func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("missing payload: %w", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, domain.ErrInvalidPayload)
	}
	return nil
}

// decodeID accepts either a bare JSON string or an object carrying key.
func decodeID(data json.RawMessage, key string) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var obj map[string]json.RawMessage
		if objErr := json.Unmarshal(data, &obj); objErr != nil {
			return "", fmt.Errorf("decode %s: %w", key, domain.ErrInvalidPayload)
		}
		if raw, ok := obj[key]; !ok || json.Unmarshal(raw, &id) != nil {
			return "", fmt.Errorf("%s is required: %w", key, domain.ErrInvalidPayload)
		}
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", fmt.Errorf("%s is required: %w", key, domain.ErrInvalidPayload)
	}
	return id, nil
}

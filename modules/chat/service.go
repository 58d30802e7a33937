package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	domain "github.com/example/chat-engine/domain/chat"
	"github.com/example/chat-engine/events"
)

// Validation limits.
const (
	MaxRoomNameLength = 100
	MaxMessageLength  = 5000
)

// Outbound event names.
const (
	EventMessageNew       = "message:new"
	EventMessageDelivered = "message:delivered"
	EventMessageRead      = "message:read"
	EventMessageDirect    = "message:direct"
	EventUserStatus       = "user:status"
	EventTypingUser       = "typing:user"
	EventTypingStop       = "typing:stop"
	EventChatError        = "error:chat"
	EventRoomMessages     = "room:messages"
	EventRoomCreated      = "room:created"
	EventRoomUserJoined   = "room:user_joined"
	EventRoomUserLeft     = "room:user_left"
)

// Emitter delivers outbound events to live connections. Implementations must
// not block on network I/O.
type Emitter interface {
	Emit(connID, event string, payload any)
	EmitToRoom(roomID, event string, payload any, exceptConnID string)
	EmitToAll(event string, payload any, exceptConnID string)
	Subscribe(connID string, roomIDs ...string)
	Unsubscribe(connID, roomID string)
}

// Publisher forwards domain events (see package events) to the event bus.
type Publisher interface {
	Publish(event any)
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, string, any)               {}
func (nopEmitter) EmitToRoom(string, string, any, string) {}
func (nopEmitter) EmitToAll(string, any, string)          {}
func (nopEmitter) Subscribe(string, ...string)            {}
func (nopEmitter) Unsubscribe(string, string)             {}

// Options tunes the service.
type Options struct {
	// TypingTTL expires typing indicators; zero keeps them until stopped.
	TypingTTL time.Duration
	// JoinHistory is the number of messages replayed on room:join.
	JoinHistory int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service owns all chat state. A single mutex serializes every mutation;
// outbound events are queued while it is held and emitted after release.
type Service struct {
	mu     sync.Mutex
	emitMu sync.Mutex // keeps flushes in commit order

	registry *ConnectionRegistry
	presence *PresenceTable
	rooms    *RoomDirectory
	messages *MessageStore
	typing   *TypingTracker

	emitter   Emitter
	publisher Publisher
	logger    types.Logger
	opts      Options
}

// NewService creates a chat service.
func NewService(logger types.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.JoinHistory <= 0 {
		opts.JoinHistory = 20
	}
	rooms := NewRoomDirectory(opts.Now)
	return &Service{
		registry: NewConnectionRegistry(),
		presence: NewPresenceTable(opts.Now),
		rooms:    rooms,
		messages: NewMessageStore(rooms, opts.Now),
		typing:   NewTypingTracker(opts.TypingTTL, opts.Now),
		emitter:  nopEmitter{},
		logger:   logger,
		opts:     opts,
	}
}

// SetEmitter wires the fan-out hub. Call before serving traffic.
func (s *Service) SetEmitter(e Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e == nil {
		e = nopEmitter{}
	}
	s.emitter = e
}

// SetPublisher wires the event bus. A nil publisher disables domain events.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

type outKind int

const (
	toConn outKind = iota
	toRoom
	toAll
	publish
)

type outbound struct {
	kind    outKind
	target  string
	event   string
	payload any
	except  string
}

// outbox collects side effects produced inside the critical section.
type outbox []outbound

func (o *outbox) toConn(connID, event string, payload any) {
	*o = append(*o, outbound{kind: toConn, target: connID, event: event, payload: payload})
}

func (o *outbox) toRoom(roomID, event string, payload any, except string) {
	*o = append(*o, outbound{kind: toRoom, target: roomID, event: event, payload: payload, except: except})
}

func (o *outbox) toAll(event string, payload any, except string) {
	*o = append(*o, outbound{kind: toAll, event: event, payload: payload, except: except})
}

func (o *outbox) publish(event any) {
	*o = append(*o, outbound{kind: publish, payload: event})
}

// update runs fn under the state lock and flushes its outbox after the lock
// is released. A panic in fn is reported as ErrInternal and its outbox is
// discarded.
func (s *Service) update(fn func(ob *outbox) error) (err error) {
	var ob outbox
	var emitter Emitter
	var publisher Publisher

	func() {
		s.mu.Lock()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Recovered panic in chat handler", "panic", fmt.Sprint(r))
				err = fmt.Errorf("panic: %v: %w", r, domain.ErrInternal)
				ob = nil
			}
			emitter, publisher = s.emitter, s.publisher
			s.emitMu.Lock()
			s.mu.Unlock()
		}()
		err = fn(&ob)
	}()
	defer s.emitMu.Unlock()

	for _, out := range ob {
		switch out.kind {
		case toConn:
			emitter.Emit(out.target, out.event, out.payload)
		case toRoom:
			emitter.EmitToRoom(out.target, out.event, out.payload, out.except)
		case toAll:
			emitter.EmitToAll(out.event, out.payload, out.except)
		case publish:
			if publisher != nil {
				publisher.Publish(out.payload)
			}
		}
	}
	return err
}

func (s *Service) currentEmitter() Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter
}

// view runs fn under the state lock without producing side effects.
func (s *Service) view(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// subscribeOnline subscribes the live connections of userIDs to roomID and
// returns those connection ids.
func (s *Service) subscribeOnline(roomID string, userIDs []string) []string {
	var conns []string
	for _, userID := range userIDs {
		if connID, ok := s.registry.Lookup(userID); ok {
			s.emitter.Subscribe(connID, roomID)
			conns = append(conns, connID)
		}
	}
	return conns
}

// ListRoomsForUser returns the rooms userID participates in.
func (s *Service) ListRoomsForUser(_ context.Context, userID string) ([]domain.Room, error) {
	if userID == "" {
		return nil, fmt.Errorf("userId is required: %w", domain.ErrInvalidPayload)
	}
	var rooms []domain.Room
	s.view(func() {
		found := s.rooms.ListForUser(userID)
		rooms = make([]domain.Room, 0, len(found))
		for _, r := range found {
			rooms = append(rooms, *r.Clone())
		}
	})
	return rooms, nil
}

// GetRoom retrieves a room by ID.
func (s *Service) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	var room *domain.Room
	s.view(func() {
		if r, ok := s.rooms.Get(roomID); ok {
			room = r.Clone()
		}
	})
	if room == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return room, nil
}

// GetRoomMessages returns a newest-first page of the room's history.
func (s *Service) GetRoomMessages(_ context.Context, roomID string, limit, offset int) ([]domain.Message, error) {
	var (
		page  []domain.Message
		found bool
	)
	s.view(func() {
		if _, found = s.rooms.Get(roomID); found {
			page = s.messages.Page(roomID, limit, offset)
		}
	})
	if !found {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return page, nil
}

// CreateRoom creates a room and subscribes its online participants.
// Private rooms created here are not deduplicated against existing pairs.
func (s *Service) CreateRoom(_ context.Context, ownerID, name string, roomType domain.RoomType, participants []string) (*domain.Room, error) {
	if roomType == "" {
		roomType = domain.RoomGroup
	}
	if ownerID == "" {
		return nil, fmt.Errorf("ownerId is required: %w", domain.ErrInvalidPayload)
	}
	if !roomType.Valid() {
		return nil, fmt.Errorf("unknown room type %q: %w", roomType, domain.ErrInvalidPayload)
	}
	if roomType == domain.RoomGroup {
		if err := ValidateRoomName(name); err != nil {
			return nil, err
		}
	}

	var room *domain.Room
	err := s.update(func(ob *outbox) error {
		created := s.rooms.Create(ownerID, strings.TrimSpace(name), roomType, participants)
		room = created.Clone()
		for _, connID := range s.subscribeOnline(room.ID, room.Participants) {
			ob.toConn(connID, EventRoomCreated, RoomCreatedPayload{Room: room})
		}
		ob.publish(events.RoomCreatedEvent{Room: *room, Timestamp: room.CreatedAt})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Room created", "roomID", room.ID, "ownerID", ownerID, "type", string(roomType))
	return room, nil
}

// AddMember adds userID to the room, subscribes their live connection and
// notifies the room.
func (s *Service) AddMember(_ context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return fmt.Errorf("roomId and userId are required: %w", domain.ErrInvalidPayload)
	}
	return s.update(func(ob *outbox) error {
		if _, ok := s.rooms.Get(roomID); !ok {
			return fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
		}
		if !s.rooms.AddMember(roomID, userID) {
			return fmt.Errorf("user %s in room %s: %w", userID, roomID, domain.ErrAlreadyMember)
		}
		s.subscribeOnline(roomID, []string{userID})
		ob.toRoom(roomID, EventRoomUserJoined, MembershipPayload{
			RoomID:  roomID,
			UserID:  userID,
			Message: "User joined the room",
		}, "")
		ob.publish(events.MemberAddedEvent{RoomID: roomID, UserID: userID, Timestamp: s.opts.Now()})
		return nil
	})
}

// RemoveMember removes userID from the room. The owner cannot be removed.
func (s *Service) RemoveMember(_ context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return fmt.Errorf("roomId and userId are required: %w", domain.ErrInvalidPayload)
	}
	return s.update(func(ob *outbox) error {
		room, ok := s.rooms.Get(roomID)
		if !ok {
			return fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
		}
		if room.OwnerID == userID {
			return fmt.Errorf("user %s owns room %s: %w", userID, roomID, domain.ErrOwnerRemoval)
		}
		if !s.rooms.RemoveMember(roomID, userID) {
			return fmt.Errorf("user %s in room %s: %w", userID, roomID, domain.ErrNotMember)
		}

		left := MembershipPayload{RoomID: roomID, UserID: userID, Message: "User left the room"}
		connID, online := s.registry.Lookup(userID)
		if online {
			s.emitter.Unsubscribe(connID, roomID)
			ob.toConn(connID, EventRoomUserLeft, left)
		}
		if s.typing.Stop(roomID, userID) {
			ob.toRoom(roomID, EventTypingStop, TypingPayload{UserID: userID, RoomID: roomID}, "")
		}
		ob.toRoom(roomID, EventRoomUserLeft, left, "")
		ob.publish(events.MemberRemovedEvent{RoomID: roomID, UserID: userID, Timestamp: s.opts.Now()})
		return nil
	})
}

// ListOnlinePresence returns every online presence record ordered by user id.
func (s *Service) ListOnlinePresence(_ context.Context) []domain.Presence {
	var online []domain.Presence
	s.view(func() {
		online = s.presence.ListOnline()
	})
	sort.Slice(online, func(i, j int) bool { return online[i].UserID < online[j].UserID })
	return online
}

// SendToUser emits event to the user's live connection. It reports whether
// the user was online.
func (s *Service) SendToUser(_ context.Context, userID, event string, payload any) (bool, error) {
	if userID == "" || event == "" {
		return false, fmt.Errorf("userId and event are required: %w", domain.ErrInvalidPayload)
	}
	delivered := false
	err := s.update(func(ob *outbox) error {
		connID, ok := s.registry.Lookup(userID)
		if !ok {
			return nil
		}
		ob.toConn(connID, event, payload)
		delivered = true
		return nil
	})
	return delivered, err
}

// SendToRoom emits event to every subscriber of the room.
func (s *Service) SendToRoom(_ context.Context, roomID, event string, payload any) error {
	if roomID == "" || event == "" {
		return fmt.Errorf("roomId and event are required: %w", domain.ErrInvalidPayload)
	}
	return s.update(func(ob *outbox) error {
		if _, ok := s.rooms.Get(roomID); !ok {
			return fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
		}
		ob.toRoom(roomID, event, payload, "")
		return nil
	})
}

// evictOffline removes up to batch stale offline presence records in one
// critical section.
func (s *Service) evictOffline(cutoff time.Time, batch int) int {
	evicted := 0
	s.view(func() {
		evicted = s.presence.EvictOffline(cutoff, batch)
	})
	return evicted
}

// expireTyping drops stale typing indicators and notifies their rooms.
func (s *Service) expireTyping() int {
	expired := 0
	_ = s.update(func(ob *outbox) error {
		for _, e := range s.typing.Expire() {
			ob.toRoom(e.RoomID, EventTypingStop, TypingPayload{UserID: e.UserID, RoomID: e.RoomID}, "")
			expired++
		}
		return nil
	})
	return expired
}

// Stats is a point-in-time snapshot used for health reporting.
type Stats struct {
	OnlineUsers     int `json:"online_users"`
	PresenceRecords int `json:"presence_records"`
	Rooms           int `json:"rooms"`
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	var st Stats
	s.view(func() {
		st = Stats{
			OnlineUsers:     s.registry.Len(),
			PresenceRecords: s.presence.Len(),
			Rooms:           s.rooms.Len(),
		}
	})
	return st
}

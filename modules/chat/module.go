package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/chat-engine/events"
)

// Config configures the chat module.
type Config struct {
	Options
	Sweeper SweeperConfig
}

// Module hosts the chat engine: it owns the Service, exposes it as
// request-reply services and runs the presence sweeper.
type Module struct {
	svc        *Service
	dispatcher *Dispatcher
	sweeper    *PresenceSweeper
	eventBus   mono.EventBus
	logger     types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(logger types.Logger, cfg Config) *Module {
	logger = logger.WithModule("chat")
	svc := NewService(logger, cfg.Options)
	return &Module{
		svc:        svc,
		dispatcher: NewDispatcher(svc),
		sweeper:    NewPresenceSweeper(svc, cfg.Sweeper, logger),
		logger:     logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	m.svc.SetPublisher(&busPublisher{bus: bus, logger: m.logger})
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.MemberAddedV1.ToBase(),
		events.MemberRemovedV1.ToBase(),
		events.PresenceChangedV1.ToBase(),
		events.MessageStoredV1.ToBase(),
	}
}

// SetEmitter wires the fan-out hub into the engine.
func (m *Module) SetEmitter(e Emitter) {
	m.svc.SetEmitter(e)
}

// Service returns the chat service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dispatcher returns the connection event dispatcher.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Start launches the presence sweeper.
func (m *Module) Start(_ context.Context) error {
	m.sweeper.Start()
	m.logger.Info("Chat module started")
	return nil
}

// Stop stops the presence sweeper.
func (m *Module) Stop(ctx context.Context) error {
	if err := m.sweeper.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop presence sweeper: %w", err)
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health reports engine counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	st := m.svc.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"online_users":     st.OnlineUsers,
			"presence_records": st.PresenceRecords,
			"rooms":            st.Rooms,
			"sessions":         m.dispatcher.SessionCount(),
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListRoomsForUser, json.Unmarshal, json.Marshal, m.handleListRoomsForUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRoomsForUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.handleGetRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoomMessages, json.Unmarshal, json.Marshal, m.handleGetRoomMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoomMessages, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.handleCreateRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceAddMember, json.Unmarshal, json.Marshal, m.handleAddMember,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceAddMember, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRemoveMember, json.Unmarshal, json.Marshal, m.handleRemoveMember,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRemoveMember, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListOnlinePresence, json.Unmarshal, json.Marshal, m.handleListOnlinePresence,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListOnlinePresence, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSendToUser, json.Unmarshal, json.Marshal, m.handleSendToUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSendToUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSendToRoom, json.Unmarshal, json.Marshal, m.handleSendToRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSendToRoom, err)
	}

	m.logger.Info("Registered chat services", "count", 9)
	return nil
}

// Domain failures travel in the response's error field so their codes
// survive the service boundary.

func (m *Module) handleListRoomsForUser(ctx context.Context, req ListRoomsForUserRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	rooms, err := m.svc.ListRoomsForUser(ctx, req.UserID)
	return ListRoomsResponse{Rooms: rooms, Error: errorOf(err)}, nil
}

func (m *Module) handleGetRoom(ctx context.Context, req GetRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, err := m.svc.GetRoom(ctx, req.RoomID)
	return RoomResponse{Room: room, Error: errorOf(err)}, nil
}

func (m *Module) handleGetRoomMessages(ctx context.Context, req GetRoomMessagesRequest, _ *mono.Msg) (MessagesResponse, error) {
	msgs, err := m.svc.GetRoomMessages(ctx, req.RoomID, req.Limit, req.Offset)
	return MessagesResponse{Messages: msgs, Error: errorOf(err)}, nil
}

func (m *Module) handleCreateRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, err := m.svc.CreateRoom(ctx, req.OwnerID, req.Name, req.Type, req.Participants)
	return RoomResponse{Room: room, Error: errorOf(err)}, nil
}

func (m *Module) handleAddMember(ctx context.Context, req MembershipRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.svc.AddMember(ctx, req.RoomID, req.UserID)
	return AckResponse{Success: err == nil, Error: errorOf(err)}, nil
}

func (m *Module) handleRemoveMember(ctx context.Context, req MembershipRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.svc.RemoveMember(ctx, req.RoomID, req.UserID)
	return AckResponse{Success: err == nil, Error: errorOf(err)}, nil
}

func (m *Module) handleListOnlinePresence(ctx context.Context, _ ListOnlinePresenceRequest, _ *mono.Msg) (PresenceListResponse, error) {
	users := m.svc.ListOnlinePresence(ctx)
	return PresenceListResponse{Users: users, Count: len(users)}, nil
}

func (m *Module) handleSendToUser(ctx context.Context, req SendToUserRequest, _ *mono.Msg) (SendToUserResponse, error) {
	delivered, err := m.svc.SendToUser(ctx, req.UserID, req.Event, req.Payload)
	return SendToUserResponse{Delivered: delivered, Error: errorOf(err)}, nil
}

func (m *Module) handleSendToRoom(ctx context.Context, req SendToRoomRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.svc.SendToRoom(ctx, req.RoomID, req.Event, req.Payload)
	return AckResponse{Success: err == nil, Error: errorOf(err)}, nil
}

// busPublisher publishes domain events on the mono event bus.
type busPublisher struct {
	bus    mono.EventBus
	logger types.Logger
}

func (p *busPublisher) Publish(event any) {
	if p.bus == nil {
		return
	}
	var err error
	switch e := event.(type) {
	case events.RoomCreatedEvent:
		err = events.RoomCreatedV1.Publish(p.bus, e, nil)
	case events.MemberAddedEvent:
		err = events.MemberAddedV1.Publish(p.bus, e, nil)
	case events.MemberRemovedEvent:
		err = events.MemberRemovedV1.Publish(p.bus, e, nil)
	case events.PresenceChangedEvent:
		err = events.PresenceChangedV1.Publish(p.bus, e, nil)
	case events.MessageStoredEvent:
		err = events.MessageStoredV1.Publish(p.bus, e, nil)
	default:
		err = fmt.Errorf("unsupported event %T", event)
	}
	if err != nil {
		p.logger.Warn("Failed to publish chat event", "error", err)
	}
}

package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/chat-engine/events"
)

// BroadcastModule owns the WebSocket fan-out hub. It also consumes chat
// domain events to report delivery activity in its health details.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    types.Logger

	messages   atomic.Int64
	rooms      atomic.Int64
	membership atomic.Int64
	presence   atomic.Int64
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	logger = logger.WithModule("broadcast")
	return &BroadcastModule{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop closes every client and waits for the hub.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped", "clients", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients":  m.hub.ClientCount(),
			"messages_stored":    m.messages.Load(),
			"rooms_created":      m.rooms.Load(),
			"membership_changes": m.membership.Load(),
			"presence_changes":   m.presence.Load(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageStoredV1, m.handleMessageStored, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageStored consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberAddedV1, m.handleMemberAdded, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberAdded consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberRemovedV1, m.handleMemberRemoved, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberRemoved consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.PresenceChangedV1, m.handlePresenceChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register PresenceChanged consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", "MessageStored, RoomCreated, MemberAdded, MemberRemoved, PresenceChanged")
	return nil
}

// Event handlers

func (m *BroadcastModule) handleMessageStored(_ context.Context, event events.MessageStoredEvent, _ *mono.Msg) error {
	m.messages.Add(1)
	m.logger.Debug("Message stored", "roomID", event.RoomID, "messageID", event.Message.ID,
		"subscribers", m.hub.RoomClientCount(event.RoomID))
	return nil
}

func (m *BroadcastModule) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.rooms.Add(1)
	m.logger.Debug("Room created", "roomID", event.Room.ID, "type", string(event.Room.Type))
	return nil
}

func (m *BroadcastModule) handleMemberAdded(_ context.Context, event events.MemberAddedEvent, _ *mono.Msg) error {
	m.membership.Add(1)
	m.logger.Debug("Member added", "roomID", event.RoomID, "userID", event.UserID)
	return nil
}

func (m *BroadcastModule) handleMemberRemoved(_ context.Context, event events.MemberRemovedEvent, _ *mono.Msg) error {
	m.membership.Add(1)
	m.logger.Debug("Member removed", "roomID", event.RoomID, "userID", event.UserID)
	return nil
}

func (m *BroadcastModule) handlePresenceChanged(_ context.Context, event events.PresenceChangedEvent, _ *mono.Msg) error {
	m.presence.Add(1)
	m.logger.Debug("Presence changed", "userID", event.Presence.UserID, "status", string(event.Presence.Status))
	return nil
}

// GetHub returns the WebSocket hub.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}

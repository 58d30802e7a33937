package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-engine/domain/chat"
)

// RoomCreatedEvent is emitted when a room is created through the service API.
type RoomCreatedEvent struct {
	Room      domain.Room `json:"room"`
	Timestamp time.Time   `json:"timestamp"`
}

// MemberAddedEvent is emitted when a user is added to a room.
type MemberAddedEvent struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberRemovedEvent is emitted when a user is removed from a room.
type MemberRemovedEvent struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceChangedEvent is emitted whenever a user goes online or offline.
type PresenceChangedEvent struct {
	Presence domain.Presence `json:"presence"`
}

// MessageStoredEvent is emitted after a message is appended to a room log.
type MessageStoredEvent struct {
	RoomID  string         `json:"roomId"`
	Message domain.Message `json:"message"`
}

// Event definitions for the chat domain.
// Subject: events.chat.v1.<name>
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)

	MemberAddedV1 = helper.EventDefinition[MemberAddedEvent](
		"chat",
		"MemberAdded",
		"v1",
	)

	MemberRemovedV1 = helper.EventDefinition[MemberRemovedEvent](
		"chat",
		"MemberRemoved",
		"v1",
	)

	PresenceChangedV1 = helper.EventDefinition[PresenceChangedEvent](
		"chat",
		"PresenceChanged",
		"v1",
	)

	MessageStoredV1 = helper.EventDefinition[MessageStoredEvent](
		"chat",
		"MessageStored",
		"v1",
	)
)

package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-monolith/mono"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/chat-engine/domain/chat"
)

// containerCapture is a dependent module that keeps the chat service
// container handed to it by the framework.
type containerCapture struct {
	container mono.ServiceContainer
}

func (c *containerCapture) Name() string                  { return "chat-client" }
func (c *containerCapture) Dependencies() []string        { return []string{"chat"} }
func (c *containerCapture) Start(_ context.Context) error { return nil }
func (c *containerCapture) Stop(_ context.Context) error  { return nil }
func (c *containerCapture) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "chat" {
		c.container = container
	}
}

// startChatApp boots a mono application with the chat module and returns an
// adapter that talks to it over request-reply services.
func startChatApp(t *testing.T) (ChatPort, *Module, *recordingEmitter) {
	t.Helper()

	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError), // Suppress logs in tests
	)
	require.NoError(t, err)

	em := newRecordingEmitter()
	module := NewModule(newMockLogger(), Config{})
	module.SetEmitter(em)
	client := &containerCapture{}

	require.NoError(t, app.Register(module))
	require.NoError(t, app.Register(client))
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
	})

	require.NotNil(t, client.container, "chat container was not injected")
	return NewChatAdapter(client.container), module, em
}

func TestChatAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	port, module, em := startChatApp(t)

	room, err := port.CreateRoom(ctx, CreateRoomRequest{
		OwnerID:      "alice",
		Name:         "Support",
		Type:         domain.RoomGroup,
		Participants: []string{"bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, room.Participants)

	got, err := port.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	rooms, err := port.ListRoomsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	require.NoError(t, port.AddMember(ctx, room.ID, "carol"))
	require.NoError(t, port.RemoveMember(ctx, room.ID, "carol"))

	msgs, err := port.GetRoomMessages(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	em.open("ca")
	disp := module.Dispatcher()
	disp.Connect("ca")
	disp.Handle("ca", EventUserJoin, json.RawMessage(`{"userId":"alice","userRole":"employee","userName":"Alice"}`))
	require.Empty(t, em.frames("ca", EventChatError))

	online, err := port.ListOnlinePresence(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].UserID)

	delivered, err := port.SendToUser(ctx, "alice", EventMessageDirect, DirectMessagePayload{
		SenderID:   "admin",
		SenderName: "Admin",
		Content:    "hello",
		Type:       DirectMessageAdmin,
	})
	require.NoError(t, err)
	assert.True(t, delivered)
	require.Len(t, em.frames("ca", EventMessageDirect), 1)

	delivered, err = port.SendToUser(ctx, "nobody", EventMessageDirect, map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, port.SendToRoom(ctx, room.ID, "room:notice", map[string]string{"text": "hi"}))
	assert.Len(t, em.frames("ca", "room:notice"), 1)
}

func TestChatAdapter_ErrorsMatchSentinels(t *testing.T) {
	ctx := context.Background()
	port, _, _ := startChatApp(t)

	room, err := port.CreateRoom(ctx, CreateRoomRequest{
		OwnerID:      "alice",
		Name:         "Ops",
		Type:         domain.RoomGroup,
		Participants: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = port.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = port.GetRoomMessages(ctx, "missing", 10, 0)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = port.CreateRoom(ctx, CreateRoomRequest{Name: "no owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	assert.ErrorIs(t, port.AddMember(ctx, room.ID, "bob"), domain.ErrAlreadyMember)
	assert.ErrorIs(t, port.AddMember(ctx, "missing", "bob"), domain.ErrRoomNotFound)
	assert.ErrorIs(t, port.RemoveMember(ctx, room.ID, "zed"), domain.ErrNotMember)
	assert.ErrorIs(t, port.RemoveMember(ctx, room.ID, "alice"), domain.ErrOwnerRemoval)

	_, err = port.SendToUser(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.ErrorIs(t, port.SendToRoom(ctx, "missing", "room:notice", nil), domain.ErrRoomNotFound)
}

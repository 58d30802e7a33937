package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/chat-engine/domain/chat"
	"github.com/example/chat-engine/events"
)

func TestService_CreateRoom(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		ownerID  string
		roomName string
		roomType domain.RoomType
		wantErr  error
		wantType domain.RoomType
	}{
		{name: "group room", ownerID: "alice", roomName: "General", roomType: domain.RoomGroup, wantType: domain.RoomGroup},
		{name: "type defaults to group", ownerID: "alice", roomName: "Random", wantType: domain.RoomGroup},
		{name: "private room without name", ownerID: "alice", roomType: domain.RoomPrivate, wantType: domain.RoomPrivate},
		{name: "missing owner", roomName: "General", wantErr: domain.ErrInvalidPayload},
		{name: "unknown type", ownerID: "alice", roomName: "General", roomType: "channel", wantErr: domain.ErrInvalidPayload},
		{name: "group without name", ownerID: "alice", roomType: domain.RoomGroup, wantErr: domain.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Options{})
			room, err := e.svc.CreateRoom(ctx, tt.ownerID, tt.roomName, tt.roomType, []string{"bob"})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateRoom() error = %v, want %v", err, tt.wantErr)
				}
				assert.Equal(t, 0, e.svc.Stats().Rooms)
				return
			}

			require.NoError(t, err)
			if room.Name != tt.roomName {
				t.Errorf("CreateRoom() room.Name = %q, want %q", room.Name, tt.roomName)
			}
			assert.Equal(t, tt.wantType, room.Type)
			assert.Equal(t, []string{tt.ownerID, "bob"}, room.Participants)
			assert.False(t, room.CreatedAt.IsZero())
		})
	}
}

func TestService_CreateRoomNotifiesOnlineParticipants(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.join(t, "cb", "bob", "Bob")
	e.join(t, "cc", "carol", "Carol")

	room, err := e.svc.CreateRoom(context.Background(), "alice", "Ops", domain.RoomGroup, []string{"bob"})
	require.NoError(t, err)

	assert.True(t, e.em.subscribed("cb", room.ID))
	assert.False(t, e.em.subscribed("cc", room.ID))
	created := e.em.frames("cb", EventRoomCreated)
	require.Len(t, created, 1)
	assert.Equal(t, room.ID, created[0].Payload.(RoomCreatedPayload).Room.ID)
	assert.Empty(t, e.em.frames("cc", EventRoomCreated))

	require.NotEmpty(t, e.pub.events)
	ev, ok := e.pub.events[len(e.pub.events)-1].(events.RoomCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, room.ID, ev.Room.ID)
}

func TestService_GetRoom(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	room, err := e.svc.CreateRoom(ctx, "alice", "General", domain.RoomGroup, nil)
	require.NoError(t, err)

	got, err := e.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Name, got.Name)

	got.Participants = append(got.Participants, "mallory")
	again, _ := e.svc.GetRoom(ctx, room.ID)
	assert.Equal(t, []string{"alice"}, again.Participants, "returned rooms are copies")

	_, err = e.svc.GetRoom(ctx, "nonexistent")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, domain.CodeRoomNotFound, domain.CodeOf(err))
}

func TestService_ListRoomsForUser(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	_, _ = e.svc.CreateRoom(ctx, "alice", "One", domain.RoomGroup, []string{"bob"})
	_, _ = e.svc.CreateRoom(ctx, "carol", "Two", domain.RoomGroup, []string{"bob"})
	_, _ = e.svc.CreateRoom(ctx, "carol", "Three", domain.RoomGroup, nil)

	rooms, err := e.svc.ListRoomsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	rooms, err = e.svc.ListRoomsForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = e.svc.ListRoomsForUser(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestService_GetRoomMessages(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	room, _ := e.svc.CreateRoom(ctx, "alice", "General", domain.RoomGroup, nil)
	e.join(t, "ca", "alice", "Alice")
	for _, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		e.send("ca", EventMessageSend, SendPayload{RoomID: room.ID, Content: text})
	}

	page, err := e.svc.GetRoomMessages(ctx, room.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].Content)
	assert.Equal(t, "m3", page[1].Content)

	page, err = e.svc.GetRoomMessages(ctx, room.ID, 50, 100)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = e.svc.GetRoomMessages(ctx, "missing", 10, 0)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestService_AddMember(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	room, _ := e.svc.CreateRoom(ctx, "alice", "General", domain.RoomGroup, nil)
	e.join(t, "ca", "alice", "Alice")
	e.join(t, "cb", "bob", "Bob")

	require.NoError(t, e.svc.AddMember(ctx, room.ID, "bob"))
	assert.True(t, e.em.subscribed("cb", room.ID), "live connection joins the room")

	for _, conn := range []string{"ca", "cb"} {
		joined := e.em.frames(conn, EventRoomUserJoined)
		require.Len(t, joined, 1, conn)
		assert.Equal(t, "bob", joined[0].Payload.(MembershipPayload).UserID)
	}

	assert.ErrorIs(t, e.svc.AddMember(ctx, room.ID, "bob"), domain.ErrAlreadyMember)
	assert.ErrorIs(t, e.svc.AddMember(ctx, "missing", "bob"), domain.ErrRoomNotFound)
	assert.ErrorIs(t, e.svc.AddMember(ctx, room.ID, ""), domain.ErrInvalidPayload)
}

func TestService_RemoveMember(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	room, _ := e.svc.CreateRoom(ctx, "alice", "General", domain.RoomGroup, []string{"bob"})
	e.join(t, "ca", "alice", "Alice")
	e.join(t, "cb", "bob", "Bob")
	e.send("cb", EventTypingStart, room.ID)

	require.NoError(t, e.svc.RemoveMember(ctx, room.ID, "bob"))
	assert.False(t, e.em.subscribed("cb", room.ID))
	assert.Len(t, e.em.frames("cb", EventRoomUserLeft), 1, "removed user is told directly")
	assert.Len(t, e.em.frames("ca", EventRoomUserLeft), 1)
	assert.Len(t, e.em.frames("ca", EventTypingStop), 1)
	assert.Empty(t, e.svc.typing.ListTyping(room.ID))

	got, _ := e.svc.GetRoom(ctx, room.ID)
	assert.Equal(t, []string{"alice"}, got.Participants)

	assert.ErrorIs(t, e.svc.RemoveMember(ctx, room.ID, "bob"), domain.ErrNotMember)
	assert.ErrorIs(t, e.svc.RemoveMember(ctx, room.ID, "alice"), domain.ErrOwnerRemoval)
	assert.ErrorIs(t, e.svc.RemoveMember(ctx, "missing", "bob"), domain.ErrRoomNotFound)
}

func TestService_SendToUser(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	e.join(t, "cb", "bob", "Bob")

	payload := json.RawMessage(`{"message":"hello"}`)
	delivered, err := e.svc.SendToUser(ctx, "bob", EventMessageDirect, payload)
	require.NoError(t, err)
	assert.True(t, delivered)
	frames := e.em.frames("cb", EventMessageDirect)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)

	delivered, err = e.svc.SendToUser(ctx, "offline", EventMessageDirect, payload)
	require.NoError(t, err)
	assert.False(t, delivered)

	_, err = e.svc.SendToUser(ctx, "bob", "", payload)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestService_SendToRoom(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})
	room, _ := e.svc.CreateRoom(ctx, "alice", "General", domain.RoomGroup, []string{"bob"})
	e.join(t, "ca", "alice", "Alice")
	e.join(t, "cb", "bob", "Bob")

	require.NoError(t, e.svc.SendToRoom(ctx, room.ID, "announcement", map[string]string{"text": "maintenance"}))
	assert.Len(t, e.em.frames("ca", "announcement"), 1)
	assert.Len(t, e.em.frames("cb", "announcement"), 1)

	assert.ErrorIs(t, e.svc.SendToRoom(ctx, "missing", "announcement", nil), domain.ErrRoomNotFound)
}

func TestService_ConcurrentDirectMessagesShareOneRoom(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.join(t, "ca", "alice", "Alice")
	e.join(t, "cb", "bob", "Bob")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.send("ca", EventMessageSend, SendPayload{RecipientID: "bob", Content: "ping"})
		}()
		go func() {
			defer wg.Done()
			e.send("cb", EventMessageSend, SendPayload{RecipientID: "alice", Content: "pong"})
		}()
	}
	wg.Wait()

	rooms, err := e.svc.ListRoomsForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, rooms, 1, "no second private room for the pair")
	assert.Equal(t, 100, e.svc.messages.Count(rooms[0].ID))

	page := e.svc.messages.Page(rooms[0].ID, 100, 0)
	for i := 1; i < len(page); i++ {
		assert.True(t, page[i-1].Timestamp.After(page[i].Timestamp))
	}
}

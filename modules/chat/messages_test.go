package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/chat-engine/domain/chat"
)

func newStoreWithRoom(t *testing.T) (*MessageStore, *RoomDirectory, *domain.Room, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	rooms := NewRoomDirectory(clock.Now)
	room := rooms.Create("alice", "Team", domain.RoomGroup, []string{"bob"})
	return NewMessageStore(rooms, clock.Now), rooms, room, clock
}

func appendN(t *testing.T, s *MessageStore, roomID string, n int) []*domain.Message {
	t.Helper()
	msgs := make([]*domain.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.Append(roomID, domain.Draft{
			SenderID: "alice",
			RoomID:   roomID,
			Content:  string(rune('a' + i)),
			Type:     domain.MessageText,
		})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	return msgs
}

func ids(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestMessageStore_AppendThenFirstPage(t *testing.T) {
	s, rooms, room, _ := newStoreWithRoom(t)

	msg, err := s.Append(room.ID, domain.Draft{
		SenderID:   "alice",
		SenderName: "Alice",
		SenderRole: domain.RoleOwner,
		RoomID:     room.ID,
		Content:    "hello",
		Type:       domain.MessageText,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.IsRead)

	page := s.Page(room.ID, 1, 0)
	require.Len(t, page, 1)
	assert.Equal(t, *msg, page[0])

	got, _ := rooms.Get(room.ID)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, msg.ID, got.LastMessage.ID)
}

func TestMessageStore_AppendUnknownRoom(t *testing.T) {
	s, _, _, _ := newStoreWithRoom(t)
	_, err := s.Append("missing", domain.Draft{SenderID: "alice", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMessageStore_TimestampsIncrease(t *testing.T) {
	s, _, room, clock := newStoreWithRoom(t)
	msgs := appendN(t, s, room.ID, 3)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp), "same clock reading still orders messages")
	}

	clock.Advance(time.Second)
	later := appendN(t, s, room.ID, 1)[0]
	assert.Equal(t, clock.Now(), later.Timestamp)
}

func TestMessageStore_Page(t *testing.T) {
	s, _, room, _ := newStoreWithRoom(t)
	m := appendN(t, s, room.ID, 5) // m[0]..m[4] oldest to newest

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "skip newest", limit: 2, offset: 1, want: []string{m[3].ID, m[2].ID}},
		{name: "first page", limit: 2, offset: 0, want: []string{m[4].ID, m[3].ID}},
		{name: "limit beyond history", limit: 10, offset: 0, want: []string{m[4].ID, m[3].ID, m[2].ID, m[1].ID, m[0].ID}},
		{name: "short last page", limit: 3, offset: 3, want: []string{m[1].ID, m[0].ID}},
		{name: "offset at end", limit: 2, offset: 5, want: []string{}},
		{name: "offset past end", limit: 2, offset: 50, want: []string{}},
		{name: "zero limit", limit: 0, offset: 0, want: []string{}},
		{name: "negative offset", limit: 1, offset: -3, want: []string{m[4].ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Page(room.ID, tt.limit, tt.offset)))
		})
	}

	assert.Empty(t, s.Page("missing", 10, 0))
}

func TestMessageStore_MarkRead(t *testing.T) {
	s, rooms, _, _ := newStoreWithRoom(t)
	private, _ := rooms.GetOrCreatePrivateRoom("alice", "bob")
	dm, err := s.Append(private.ID, domain.Draft{SenderID: "alice", RecipientID: "bob", Content: "hi", Type: domain.MessageText})
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     string
		userID string
		want   bool
	}{
		{name: "stranger", id: dm.ID, userID: "carol", want: false},
		{name: "unknown id", id: "nope", userID: "bob", want: false},
		{name: "empty user", id: dm.ID, userID: "", want: false},
		{name: "recipient", id: dm.ID, userID: "bob", want: true},
		{name: "sender", id: dm.ID, userID: "alice", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roomID, ok := s.MarkRead(tt.id, tt.userID)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, private.ID, roomID)
			}
		})
	}

	page := s.Page(private.ID, 1, 0)
	require.Len(t, page, 1)
	assert.True(t, page[0].IsRead)
}

func TestMessageStore_MarkReadStrangerLeavesUnread(t *testing.T) {
	s, _, room, _ := newStoreWithRoom(t)
	msg := appendN(t, s, room.ID, 1)[0]

	_, ok := s.MarkRead(msg.ID, "bob")
	assert.False(t, ok, "room messages have no recipient")
	assert.False(t, s.Page(room.ID, 1, 0)[0].IsRead)
}

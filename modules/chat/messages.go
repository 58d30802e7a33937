package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/example/chat-engine/domain/chat"
)

type storedMessage struct {
	roomID string
	msg    *domain.Message
}

// MessageStore keeps an append-only, ordered log per room. Every message is
// stored under a resolved room id, including direct messages.
type MessageStore struct {
	logs  map[string][]*domain.Message // roomID -> oldest..newest
	byID  map[string]storedMessage
	rooms *RoomDirectory
	now   func() time.Time
	newID func() string
}

// NewMessageStore creates a store that keeps rooms' lastMessage current.
func NewMessageStore(rooms *RoomDirectory, now func() time.Time) *MessageStore {
	if now == nil {
		now = time.Now
	}
	return &MessageStore{
		logs:  make(map[string][]*domain.Message),
		byID:  make(map[string]storedMessage),
		rooms: rooms,
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Append stores draft at the end of roomID's log. The timestamp is strictly
// greater than the previous message in the same room.
func (s *MessageStore) Append(roomID string, draft domain.Draft) (*domain.Message, error) {
	if _, ok := s.rooms.Get(roomID); !ok {
		return nil, fmt.Errorf("append to %s: %w", roomID, domain.ErrRoomNotFound)
	}

	ts := s.now()
	log := s.logs[roomID]
	if n := len(log); n > 0 && !ts.After(log[n-1].Timestamp) {
		ts = log[n-1].Timestamp.Add(time.Nanosecond)
	}

	msg := &domain.Message{
		ID:          s.newID(),
		SenderID:    draft.SenderID,
		SenderName:  draft.SenderName,
		SenderRole:  draft.SenderRole,
		RecipientID: draft.RecipientID,
		RoomID:      draft.RoomID,
		Content:     draft.Content,
		Type:        draft.Type,
		Timestamp:   ts,
	}
	s.logs[roomID] = append(log, msg)
	s.byID[msg.ID] = storedMessage{roomID: roomID, msg: msg}
	s.rooms.setLastMessage(roomID, msg)
	return msg, nil
}

// Page returns up to limit messages newest-first, skipping the offset most
// recent ones. Out-of-range windows are clamped and may return fewer
// messages, or none.
func (s *MessageStore) Page(roomID string, limit, offset int) []domain.Message {
	log := s.logs[roomID]
	n := len(log)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= n {
		return []domain.Message{}
	}

	end := n - offset
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := make([]domain.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		page = append(page, *log[i])
	}
	return page
}

// MarkRead sets isRead when userID is the sender or the recipient of the
// message. It returns the room the message is stored under.
func (s *MessageStore) MarkRead(messageID, userID string) (roomID string, ok bool) {
	entry, found := s.byID[messageID]
	if !found {
		return "", false
	}
	if userID == "" || (entry.msg.SenderID != userID && entry.msg.RecipientID != userID) {
		return "", false
	}
	entry.msg.IsRead = true
	return entry.roomID, true
}

// Count returns the number of messages stored for roomID.
func (s *MessageStore) Count(roomID string) int {
	return len(s.logs[roomID])
}

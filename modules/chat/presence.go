package chat

import (
	"time"

	domain "github.com/example/chat-engine/domain/chat"
)

// PresenceTable keeps one presence record per user. Not safe for concurrent
// use on its own.
type PresenceTable struct {
	records map[string]*domain.Presence
	now     func() time.Time
}

// NewPresenceTable creates an empty table using now as its clock.
func NewPresenceTable(now func() time.Time) *PresenceTable {
	if now == nil {
		now = time.Now
	}
	return &PresenceTable{
		records: make(map[string]*domain.Presence),
		now:     now,
	}
}

// MarkOnline upserts userID as online and returns a copy of the record.
func (t *PresenceTable) MarkOnline(userID string) domain.Presence {
	return t.set(userID, domain.StatusOnline)
}

// MarkOffline upserts userID as offline. lastSeen is refreshed even when the
// user was already offline.
func (t *PresenceTable) MarkOffline(userID string) domain.Presence {
	return t.set(userID, domain.StatusOffline)
}

func (t *PresenceTable) set(userID string, status domain.PresenceStatus) domain.Presence {
	p, ok := t.records[userID]
	if !ok {
		p = &domain.Presence{UserID: userID}
		t.records[userID] = p
	}
	p.Status = status
	p.LastSeen = t.now()
	return *p
}

// Get returns the record for userID.
func (t *PresenceTable) Get(userID string) (domain.Presence, bool) {
	p, ok := t.records[userID]
	if !ok {
		return domain.Presence{}, false
	}
	return *p, true
}

// ListOnline returns every online record in no particular order.
func (t *PresenceTable) ListOnline() []domain.Presence {
	online := make([]domain.Presence, 0, len(t.records))
	for _, p := range t.records {
		if p.Status == domain.StatusOnline {
			online = append(online, *p)
		}
	}
	return online
}

// EvictOffline deletes at most limit offline records last seen before cutoff
// and returns how many were deleted. Online records are never touched.
// A limit <= 0 means no limit.
func (t *PresenceTable) EvictOffline(cutoff time.Time, limit int) int {
	evicted := 0
	for userID, p := range t.records {
		if limit > 0 && evicted >= limit {
			break
		}
		if p.Status == domain.StatusOffline && p.LastSeen.Before(cutoff) {
			delete(t.records, userID)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of records.
func (t *PresenceTable) Len() int {
	return len(t.records)
}

package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"

	domain "github.com/example/chat-engine/domain/chat"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func newMockLogger() types.Logger {
	return &mockLogger{}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type frame struct {
	Event   string
	Payload any
}

// recordingEmitter resolves room and broadcast targets against its own
// subscription table and records what each connection would receive.
type recordingEmitter struct {
	mu        sync.Mutex
	conns     map[string]bool
	subs      map[string]map[string]bool // connID -> roomIDs
	delivered map[string][]frame
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{
		conns:     make(map[string]bool),
		subs:      make(map[string]map[string]bool),
		delivered: make(map[string][]frame),
	}
}

func (e *recordingEmitter) open(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[connID] = true
}

func (e *recordingEmitter) Emit(connID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered[connID] = append(e.delivered[connID], frame{Event: event, Payload: payload})
}

func (e *recordingEmitter) EmitToRoom(roomID, event string, payload any, except string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for connID, rooms := range e.subs {
		if rooms[roomID] && connID != except {
			e.delivered[connID] = append(e.delivered[connID], frame{Event: event, Payload: payload})
		}
	}
}

func (e *recordingEmitter) EmitToAll(event string, payload any, except string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for connID := range e.conns {
		if connID != except {
			e.delivered[connID] = append(e.delivered[connID], frame{Event: event, Payload: payload})
		}
	}
}

func (e *recordingEmitter) Subscribe(connID string, roomIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs[connID] == nil {
		e.subs[connID] = make(map[string]bool)
	}
	for _, roomID := range roomIDs {
		e.subs[connID][roomID] = true
	}
}

func (e *recordingEmitter) Unsubscribe(connID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs[connID], roomID)
}

func (e *recordingEmitter) subscribed(connID, roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subs[connID][roomID]
}

func (e *recordingEmitter) frames(connID string, event string) []frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []frame
	for _, f := range e.delivered[connID] {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered = make(map[string][]frame)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// testEngine wires a Service and Dispatcher to recording fakes.
type testEngine struct {
	svc   *Service
	disp  *Dispatcher
	em    *recordingEmitter
	pub   *recordingPublisher
	clock *fakeClock
}

func newTestEngine(t *testing.T, opts Options) *testEngine {
	t.Helper()
	clock := newFakeClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	svc := NewService(newMockLogger(), opts)
	em := newRecordingEmitter()
	pub := &recordingPublisher{}
	svc.SetEmitter(em)
	svc.SetPublisher(pub)
	return &testEngine{svc: svc, disp: NewDispatcher(svc), em: em, pub: pub, clock: clock}
}

func (e *testEngine) send(connID, event string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	e.disp.Handle(connID, event, raw)
}

func (e *testEngine) join(t *testing.T, connID, userID, name string) {
	t.Helper()
	e.em.open(connID)
	e.disp.Connect(connID)
	e.send(connID, EventUserJoin, map[string]string{
		"userId":   userID,
		"userRole": "employee",
		"userName": name,
	})
	require.Empty(t, e.em.frames(connID, EventChatError), "join of %s failed", userID)
}

func (e *testEngine) errorCodes(connID string) []domain.Code {
	var codes []domain.Code
	for _, f := range e.em.frames(connID, EventChatError) {
		codes = append(codes, f.Payload.(*domain.Error).Code)
	}
	return codes
}

package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	domain "github.com/example/chat-engine/domain/chat"
	"github.com/example/chat-engine/modules/broadcast"
	"github.com/example/chat-engine/modules/chat"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")

	api.Get("/users/active", m.listActiveUsers)
	api.Get("/users/:userId/rooms", m.listRoomsForUser)

	api.Post("/rooms", m.createRoom)
	api.Get("/rooms/:roomId", m.getRoom)
	api.Get("/rooms/:roomId/messages", m.getRoomMessages)
	api.Post("/rooms/:roomId/users", m.addMember)
	api.Delete("/rooms/:roomId/users", m.removeMember)
	api.Post("/rooms/:roomId/broadcast", m.broadcastToRoom)

	api.Post("/messages/direct", m.sendDirectMessage)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
		},
	})
}

// listRoomsForUser handles GET /api/v1/users/:userId/rooms.
func (m *APIModule) listRoomsForUser(c *fiber.Ctx) error {
	rooms, err := m.chatAdapter.ListRoomsForUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return m.fail(c, err)
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return ok(c, fiber.StatusOK, rooms)
}

// getRoom handles GET /api/v1/rooms/:roomId.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	room, err := m.chatAdapter.GetRoom(c.UserContext(), c.Params("roomId"))
	if err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusOK, room)
}

// getRoomMessages handles GET /api/v1/rooms/:roomId/messages.
func (m *APIModule) getRoomMessages(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	limit := c.QueryInt("limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := c.QueryInt("offset", 0)

	messages, err := m.chatAdapter.GetRoomMessages(c.UserContext(), roomID, limit, offset)
	if err != nil {
		return m.fail(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return ok(c, fiber.StatusOK, MessagesPage{
		RoomID:   roomID,
		Messages: messages,
		Limit:    limit,
		Offset:   offset,
	})
}

// createRoom handles POST /api/v1/rooms.
func (m *APIModule) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return m.fail(c, fmt.Errorf("parse body: %v: %w", err, domain.ErrInvalidPayload))
	}

	room, err := m.chatAdapter.CreateRoom(c.UserContext(), chat.CreateRoomRequest{
		OwnerID:      strings.TrimSpace(req.OwnerID),
		Name:         req.Name,
		Type:         domain.RoomType(req.Type),
		Participants: req.Participants,
	})
	if err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusCreated, room)
}

// addMember handles POST /api/v1/rooms/:roomId/users.
func (m *APIModule) addMember(c *fiber.Ctx) error {
	var req MemberRequest
	if err := c.BodyParser(&req); err != nil {
		return m.fail(c, fmt.Errorf("parse body: %v: %w", err, domain.ErrInvalidPayload))
	}
	if err := m.chatAdapter.AddMember(c.UserContext(), c.Params("roomId"), strings.TrimSpace(req.UserID)); err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusOK, nil)
}

// removeMember handles DELETE /api/v1/rooms/:roomId/users.
func (m *APIModule) removeMember(c *fiber.Ctx) error {
	var req MemberRequest
	if err := c.BodyParser(&req); err != nil {
		return m.fail(c, fmt.Errorf("parse body: %v: %w", err, domain.ErrInvalidPayload))
	}
	if err := m.chatAdapter.RemoveMember(c.UserContext(), c.Params("roomId"), strings.TrimSpace(req.UserID)); err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusOK, nil)
}

// listActiveUsers handles GET /api/v1/users/active.
func (m *APIModule) listActiveUsers(c *fiber.Ctx) error {
	users, err := m.chatAdapter.ListOnlinePresence(c.UserContext())
	if err != nil {
		return m.fail(c, err)
	}
	if users == nil {
		users = []domain.Presence{}
	}
	return ok(c, fiber.StatusOK, ActiveUsersResponse{Users: users, Count: len(users)})
}

// sendDirectMessage handles POST /api/v1/messages/direct.
func (m *APIModule) sendDirectMessage(c *fiber.Ctx) error {
	var req DirectMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return m.fail(c, fmt.Errorf("parse body: %v: %w", err, domain.ErrInvalidPayload))
	}
	if err := chat.ValidateMessage(req.Message); err != nil {
		return m.fail(c, err)
	}
	senderID := strings.TrimSpace(req.SenderID)
	senderName := strings.TrimSpace(req.SenderName)
	if senderID == "" || senderName == "" {
		return m.fail(c, fmt.Errorf("senderId and senderName are required: %w", domain.ErrInvalidPayload))
	}

	payload := chat.DirectMessagePayload{
		SenderID:   senderID,
		SenderName: senderName,
		Content:    strings.TrimSpace(req.Message),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Type:       chat.DirectMessageAdmin,
	}
	delivered, err := m.chatAdapter.SendToUser(c.UserContext(), strings.TrimSpace(req.UserID), chat.EventMessageDirect, payload)
	if err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusOK, DirectMessageResponse{Delivered: delivered})
}

// broadcastToRoom handles POST /api/v1/rooms/:roomId/broadcast.
func (m *APIModule) broadcastToRoom(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return m.fail(c, fmt.Errorf("parse body: %v: %w", err, domain.ErrInvalidPayload))
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}
	if err := m.chatAdapter.SendToRoom(c.UserContext(), c.Params("roomId"), strings.TrimSpace(req.Event), req.Data); err != nil {
		return m.fail(c, err)
	}
	return ok(c, fiber.StatusOK, nil)
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Success: true, Data: data})
}

// fail writes the error envelope. Uncoded errors are logged and reported
// as INTERNAL_ERROR.
func (m *APIModule) fail(c *fiber.Ctx, err error) error {
	coded := domain.AsError(err)
	if coded.Code == domain.CodeInternal {
		m.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(httpStatus(coded.Code)).JSON(ErrorResponse{Error: coded})
}

func httpStatus(code domain.Code) int {
	switch code {
	case domain.CodeAuth:
		return fiber.StatusUnauthorized
	case domain.CodeValidation, domain.CodeInvalidMessage:
		return fiber.StatusBadRequest
	case domain.CodeRoomNotFound, domain.CodeMessageNotFound:
		return fiber.StatusNotFound
	case domain.CodeUnauthorized:
		return fiber.StatusForbidden
	case domain.CodeAlreadyMember, domain.CodeNotMember, domain.CodeOwnerRemoval:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// handleWebSocket handles WebSocket connections at /ws. The read loop runs
// here; outbound frames go through the hub and the client's write pump.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	client := broadcast.NewClient(connID, c, m.cfg.SendBuffer)

	m.hub.Register(client)
	m.gateway.Connect(connID)
	go client.WritePump(m.logger)

	defer func() {
		m.gateway.Disconnect(connID)
		m.hub.Unregister(client)
		<-client.Done()
		m.logger.Debug("WebSocket disconnected", "connID", connID)
	}()

	if m.cfg.MaxMessageBytes > 0 {
		c.SetReadLimit(int64(m.cfg.MaxMessageBytes))
	}
	m.logger.Debug("WebSocket connected", "connID", connID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read error", "connID", connID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(msgBytes, &frame); err != nil {
			m.gateway.Reject(connID, fmt.Errorf("decode frame: %v: %w", err, domain.ErrInvalidPayload))
			continue
		}
		if frame.Event == "" {
			m.gateway.Reject(connID, fmt.Errorf("frame has no event: %w", domain.ErrInvalidPayload))
			continue
		}
		m.gateway.Handle(connID, frame.Event, frame.Data)
	}
}

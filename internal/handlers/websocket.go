package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"streetlight/internal/models"
	"streetlight/internal/services"
)

// turnTimeout bounds one streamed turn end to end, including tool calls.
const turnTimeout = 5 * time.Minute

// WebSocketHandler handles the streaming chat path. One frame of type "chat"
// runs one turn; the client receives stream_chunk frames for content deltas,
// tool_call frames when the model dispatches a tool, and a final complete
// frame carrying the same payload as the synchronous response.
type WebSocketHandler struct {
	service *services.ChatService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(service *services.ChatService) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		userID = "anonymous"
	}
	log.Printf("🔌 [WS] Connection %s opened (user %s)", connID, userID)
	defer log.Printf("🔌 [WS] Connection %s closed", connID)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.write(c, models.ServerMessage{Type: "error", Error: "Invalid message format"})
			continue
		}
		if msg.Type != "chat" {
			h.write(c, models.ServerMessage{Type: "error", Error: "Unknown message type: " + msg.Type})
			continue
		}
		if msg.Message == "" {
			h.write(c, models.ServerMessage{Type: "error", Error: "Message is required"})
			continue
		}

		h.runTurn(c, userID, &msg)
	}
}

// runTurn streams one turn back over the connection. Turn-level failures
// surface as a normal assistant answer, so an error frame only appears when
// the request never reached orchestration.
func (h *WebSocketHandler) runTurn(c *websocket.Conn, userID string, msg *models.ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	req := &models.ChatRequest{
		ConversationID: msg.ConversationID,
		Message:        msg.Message,
	}
	events := &services.StreamEvents{
		OnDelta: func(content string) {
			h.write(c, models.ServerMessage{Type: "stream_chunk", Content: content})
		},
		OnTool: func(name string) {
			h.write(c, models.ServerMessage{Type: "tool_call", Tool: name})
		},
	}

	resp, err := h.service.StreamMessage(ctx, userID, req, events)
	if err != nil {
		log.Printf("❌ [WS] Turn failed before orchestration: %v", err)
		h.write(c, models.ServerMessage{Type: "error", Error: "Failed to process message"})
		return
	}

	h.write(c, models.ServerMessage{
		Type:           "complete",
		ConversationID: resp.ConversationID,
		Message:        resp.Message,
		Sources:        resp.Sources,
	})
}

func (h *WebSocketHandler) write(c *websocket.Conn, msg models.ServerMessage) {
	if err := c.WriteJSON(msg); err != nil {
		log.Printf("⚠️ [WS] Failed to write frame: %v", err)
	}
}

package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"streetlight/internal/models"
	"streetlight/internal/services"
)

// ChatHandler handles the synchronous chat path.
type ChatHandler struct {
	service *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Send runs one synchronous turn.
// POST /api/chat
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	userID, _ := c.Locals("user_id").(string)
	resp, err := h.service.SendMessage(c.Context(), userID, &req)
	if err != nil {
		log.Printf("❌ Chat turn failed before orchestration: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(resp)
}

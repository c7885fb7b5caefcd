package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"streetlight/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.DB
	mongo *database.MongoDB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongo *database.MongoDB) *HealthHandler {
	return &HealthHandler{db: db, mongo: mongo}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	directory := "up"
	if err := h.db.Ping(); err != nil {
		status = "degraded"
		directory = "down"
	}
	conversations := "disabled"
	if h.mongo != nil {
		conversations = "up"
		if err := h.mongo.Ping(c.Context()); err != nil {
			status = "degraded"
			conversations = "down"
		}
	}

	return c.JSON(fiber.Map{
		"status":        status,
		"directory":     directory,
		"conversations": conversations,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

package handlers

import (
	"strconv"

	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HandoffHandler handles agent handoff requests
type HandoffHandler struct {
	handoffs *services.HandoffService
}

// NewHandoffHandler creates a new handoff handler
func NewHandoffHandler(handoffs *services.HandoffService) *HandoffHandler {
	return &HandoffHandler{handoffs: handoffs}
}

type handoffRequest struct {
	FromAgent       string `json:"from_agent"`
	FromModel       string `json:"from_model"`
	ToAgent         string `json:"to_agent"`
	ToModel         string `json:"to_model"`
	Reason          string `json:"reason"`
	PreserveContext bool   `json:"preserve_context"`
	SessionID       string `json:"session_id"`
}

// Handoff records a transfer of serving responsibility
// POST /api/handoff
func (h *HandoffHandler) Handoff(c *fiber.Ctx) error {
	var req handoffRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	handoff, err := h.handoffs.Handoff(req.FromAgent, req.FromModel, req.ToAgent, req.ToModel, req.Reason, req.PreserveContext, req.SessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(handoff)
}

// GetStats summarizes handoffs recorded since process start
// GET /api/handoff/stats
func (h *HandoffHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.handoffs.GetStats())
}

// GetHistory returns recent handoffs, newest first
// GET /api/handoff/history?limit=50
func (h *HandoffHandler) GetHistory(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	return c.JSON(fiber.Map{
		"handoffs": h.handoffs.GetHistory(limit),
	})
}

package handlers

import (
	"modelmux/internal/middleware"
	"modelmux/internal/models"
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// RoutingHandler handles route resolution and rule management requests
type RoutingHandler struct {
	router *services.RouterService
}

// NewRoutingHandler creates a new routing handler
func NewRoutingHandler(router *services.RouterService) *RoutingHandler {
	return &RoutingHandler{router: router}
}

// Route resolves the model for a request context
// POST /api/route
func (h *RoutingHandler) Route(c *fiber.Ctx) error {
	var ctx models.RoutingContext
	if err := c.BodyParser(&ctx); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Caller identity comes from the verified token, never from the body
	actor := middleware.ActorFromContext(c)
	ctx.UserID = actor.UserID
	ctx.AccountID = actor.AccountID
	ctx.TeamID = actor.TeamID
	ctx.Role = actor.Role

	decision, err := h.router.Route(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(decision)
}

// ListRules returns the active rule set in evaluation order
// GET /api/rules
func (h *RoutingHandler) ListRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"rules": h.router.GetRules(),
	})
}

// AddRule adds a routing rule
// POST /api/rules
func (h *RoutingHandler) AddRule(c *fiber.Ctx) error {
	var rule models.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := h.router.AddRule(rule)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateRule replaces a rule by id
// PUT /api/rules/:id
func (h *RoutingHandler) UpdateRule(c *fiber.Ctx) error {
	var rule models.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	rule.ID = c.Params("id")

	if err := h.router.UpdateRule(rule); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(rule)
}

// DeleteRule removes a rule by id
// DELETE /api/rules/:id
func (h *RoutingHandler) DeleteRule(c *fiber.Ctx) error {
	if err := h.router.DeleteRule(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

package handlers

import (
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ModelHandler handles model registry requests
type ModelHandler struct {
	registry *services.RegistryService
}

// NewModelHandler creates a new model handler
func NewModelHandler(registry *services.RegistryService) *ModelHandler {
	return &ModelHandler{registry: registry}
}

// ListModels returns registered models, optionally filtered by capability or family
// GET /api/models?capability=vision&family=claude
func (h *ModelHandler) ListModels(c *fiber.Ctx) error {
	if capability := c.Query("capability"); capability != "" {
		return c.JSON(fiber.Map{
			"models": h.registry.ListByCapability(capability),
		})
	}
	if family := c.Query("family"); family != "" {
		return c.JSON(fiber.Map{
			"models": h.registry.ListByFamily(family),
		})
	}

	return c.JSON(fiber.Map{
		"models": h.registry.ListAll(),
	})
}

// GetModel returns one model descriptor with its availability
// GET /api/models/:id
func (h *ModelHandler) GetModel(c *fiber.Ctx) error {
	modelID := c.Params("id")

	desc, err := h.registry.Lookup(modelID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Model not found",
		})
	}

	return c.JSON(fiber.Map{
		"model":     desc,
		"available": h.registry.IsModelAvailable(modelID),
	})
}

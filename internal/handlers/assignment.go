package handlers

import (
	"errors"

	"modelmux/internal/middleware"
	"modelmux/internal/models"
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AssignmentHandler handles task assignment requests
type AssignmentHandler struct {
	assignments *services.AssignmentService
}

// NewAssignmentHandler creates a new assignment handler
func NewAssignmentHandler(assignments *services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// GetAssignment resolves the effective assignment for a task type and the caller
// GET /api/assignments/:taskType
func (h *AssignmentHandler) GetAssignment(c *fiber.Ctx) error {
	taskType := c.Params("taskType")
	actor := middleware.ActorFromContext(c)

	assignment := h.assignments.GetAssignment(taskType, actor)
	if assignment == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No assignment for task type",
		})
	}

	return c.JSON(assignment)
}

// ListAssignments returns every stored assignment
// GET /api/assignments
func (h *AssignmentHandler) ListAssignments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"assignments": h.assignments.GetAllAssignments(),
	})
}

// SetAssignment writes an assignment at a hierarchy level
// PUT /api/assignments/:taskType
func (h *AssignmentHandler) SetAssignment(c *fiber.Ctx) error {
	var assignment models.AIAssignment
	if err := c.BodyParser(&assignment); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	taskType := c.Params("taskType")
	actor := middleware.ActorFromContext(c)

	created, err := h.assignments.SetAssignment(taskType, assignment, actor)
	if err != nil {
		var permErr *services.PermissionError
		if errors.As(err, &permErr) {
			return c.Status(fiber.StatusForbidden).JSON(permErr)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(created)
}

// DeleteAssignment removes an assignment
// DELETE /api/assignments/:taskType?level=team&scope_owner=team-42
func (h *AssignmentHandler) DeleteAssignment(c *fiber.Ctx) error {
	taskType := c.Params("taskType")
	level := c.Query("level")
	scopeOwner := c.Query("scope_owner")
	actor := middleware.ActorFromContext(c)

	if err := h.assignments.DeleteAssignment(taskType, level, scopeOwner, actor); err != nil {
		var permErr *services.PermissionError
		if errors.As(err, &permErr) {
			return c.Status(fiber.StatusForbidden).JSON(permErr)
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

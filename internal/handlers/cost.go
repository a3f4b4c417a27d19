package handlers

import (
	"modelmux/internal/middleware"
	"modelmux/internal/models"
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CostHandler handles cost calculation, recording, and budget requests
type CostHandler struct {
	costs   *services.CostService
	budgets *services.BudgetService
}

// NewCostHandler creates a new cost handler
func NewCostHandler(costs *services.CostService, budgets *services.BudgetService) *CostHandler {
	return &CostHandler{costs: costs, budgets: budgets}
}

type costRequest struct {
	ModelID      string `json:"model_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Calculate computes the cost of one invocation without recording it
// POST /api/cost/calculate
func (h *CostHandler) Calculate(c *fiber.Ctx) error {
	var req costRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ModelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "model_id is required",
		})
	}

	return c.JSON(h.costs.CalculateCost(req.ModelID, req.InputTokens, req.OutputTokens))
}

// Record calculates and records one invocation against the caller's account
// POST /api/cost/record
func (h *CostHandler) Record(c *fiber.Ctx) error {
	var req costRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	actor := middleware.ActorFromContext(c)
	entry, alerts, err := h.costs.RecordCost(c.Context(), req.ModelID, actor.AccountID, actor.UserID, req.InputTokens, req.OutputTokens)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry":  entry,
		"alerts": alerts,
	})
}

// GetTotals returns a snapshot of the running cost sums
// GET /api/cost/totals
func (h *CostHandler) GetTotals(c *fiber.Ctx) error {
	return c.JSON(h.costs.GetTotals())
}

// SetBudget writes an account's budget configuration
// PUT /api/accounts/:id/budget
func (h *CostHandler) SetBudget(c *fiber.Ctx) error {
	var budget models.BudgetConfig
	if err := c.BodyParser(&budget); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	budget.AccountID = c.Params("id")

	// Budget writes are an account-admin operation
	actor := middleware.ActorFromContext(c)
	if models.RoleRank(actor.Role) < models.RoleRank(models.RoleOrgAdmin) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Budget configuration requires an org admin role",
		})
	}

	if err := h.budgets.SetBudget(c.Context(), budget); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store budget configuration",
		})
	}

	return c.JSON(budget)
}

// GetBudget returns an account's budget configuration
// GET /api/accounts/:id/budget
func (h *CostHandler) GetBudget(c *fiber.Ctx) error {
	budget := h.budgets.GetBudget(c.Context(), c.Params("id"))
	if budget == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No budget configured for account",
		})
	}
	return c.JSON(budget)
}

package handlers

import (
	"strconv"

	"modelmux/internal/middleware"
	"modelmux/internal/models"
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SessionHandler handles session note requests
type SessionHandler struct {
	sessions *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// AppendNote appends a note to a session
// POST /api/sessions/:id/notes
func (h *SessionHandler) AppendNote(c *fiber.Ctx) error {
	var note models.SessionNote
	if err := c.BodyParser(&note); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	note.SessionID = c.Params("id")
	actor := middleware.ActorFromContext(c)
	note.UserID = actor.UserID
	note.AccountID = actor.AccountID

	created, err := h.sessions.Append(note)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetNotes returns a session's unexpired notes, newest first
// GET /api/sessions/:id/notes?type=context&limit=10
func (h *SessionHandler) GetNotes(c *fiber.Ctx) error {
	opts := services.ReadOptions{
		NoteType: c.Query("type"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	notes := h.sessions.Read(c.Params("id"), opts)
	return c.JSON(fiber.Map{
		"notes": notes,
		"count": len(notes),
	})
}

// GetSummary returns the composed session summary used for handoffs
// GET /api/sessions/:id/summary
func (h *SessionHandler) GetSummary(c *fiber.Ctx) error {
	summary := h.sessions.BuildSummary(c.Params("id"))
	return c.JSON(fiber.Map{
		"session_id": c.Params("id"),
		"summary":    summary,
	})
}

package handlers

import (
	"context"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db       *database.DB
	mongo    *database.MongoDB
	redis    *services.RedisService
	sessions *services.SessionService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongo *database.MongoDB, redis *services.RedisService, sessions *services.SessionService) *HealthHandler {
	return &HealthHandler{db: db, mongo: mongo, redis: redis, sessions: sessions}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	stores := fiber.Map{
		"sqlite": h.checkSQLite(),
		"mongo":  h.checkMongo(ctx),
		"redis":  h.checkRedis(ctx),
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"sessions":  h.sessions.SessionCount(),
		"stores":    stores,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) checkSQLite() string {
	if h.db == nil {
		return "disabled"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkMongo(ctx context.Context) string {
	if h.mongo == nil {
		return "disabled"
	}
	if err := h.mongo.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return "disabled"
	}
	if err := h.redis.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds per-surface request limits
type RateLimitConfig struct {
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	WriteMax        int
	WriteExpiration time.Duration
}

// DefaultRateLimitConfig reads limits from the environment with sane defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	config := &RateLimitConfig{
		GlobalAPIMax:        300,
		GlobalAPIExpiration: 1 * time.Minute,
		WriteMax:            60,
		WriteExpiration:     1 * time.Minute,
	}

	if v := os.Getenv("RATE_LIMIT_GLOBAL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WRITE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WriteMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.WriteMax = 500
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// WriteRateLimiter limits mutating endpoints (rules, assignments, budgets)
// per authenticated user, falling back to IP.
func WriteRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WriteMax,
		Expiration: config.WriteExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			actor := ActorFromContext(c)
			if actor.UserID != "" {
				return "write:" + actor.UserID
			}
			return "write-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Write limit reached for %s on %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": int(config.WriteExpiration.Seconds()),
			})
		},
	})
}

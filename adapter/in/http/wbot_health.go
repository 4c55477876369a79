package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/countplus7/wbot-backend-sub000/core/service/classify"
	"github.com/countplus7/wbot-backend-sub000/core/service/common"
)

// HealthHandler serves liveness and readiness probes plus classifier cache
// statistics.
type HealthHandler struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	cache    *common.TwoTierCache
	registry *classify.LabelRegistry
	webhook  *WebhookHandler
	started  time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db *pgxpool.Pool, redisClient *redis.Client, cache *common.TwoTierCache, registry *classify.LabelRegistry, webhook *WebhookHandler) *HealthHandler {
	return &HealthHandler{
		db:       db,
		redis:    redisClient,
		cache:    cache,
		registry: registry,
		webhook:  webhook,
		started:  time.Now(),
	}
}

// Register mounts the probe routes.
func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

// Health is the liveness probe: process up, with cache and intake counters.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if h.cache != nil {
		hits, misses, entries := h.cache.MemoryStats()
		body["classification_cache"] = fiber.Map{
			"hits":    hits,
			"misses":  misses,
			"entries": entries,
		}
	}
	if h.registry != nil {
		body["active_labels"] = h.registry.Len()
	}
	if h.webhook != nil {
		metrics := h.webhook.Metrics()
		body["webhook"] = fiber.Map{
			"received":   metrics.Received,
			"dispatched": metrics.Dispatched,
			"rejected":   metrics.Rejected,
		}
	}

	return c.JSON(body)
}

// Ready is the readiness probe: verifies the stores backing dedup and the
// durable cache tier.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = "healthy"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

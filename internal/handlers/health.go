package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"gorm.io/gorm"
)

const readinessTimeout = 2 * time.Second

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewHealthHandler creates a HealthHandler. redisClient may be nil.
func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// Live reports that the process is up.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Task Tracker API is running",
	})
}

// Ready pings the database and, when configured, redis.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := gin.H{"database": "ok"}
	ready := true

	if err := h.pingDB(ctx); err != nil {
		logger.Get().Warn().Err(err).Msg("database not ready")
		checks["database"] = "unavailable"
		ready = false
	}

	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			logger.Get().Warn().Err(err).Msg("redis not ready")
			checks["redis"] = "unavailable"
			ready = false
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stolenhq/notify/internal/queue"
)

type HealthHandler struct {
	queue queue.Publisher
	redis *redis.Client
}

func NewHealthHandler(queue queue.Publisher, redis *redis.Client) *HealthHandler {
	return &HealthHandler{
		queue: queue,
		redis: redis,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	// Check RabbitMQ
	if h.queue.IsConnected() {
		checks["rabbitmq"] = "healthy"
	} else {
		checks["rabbitmq"] = "unhealthy"
	}

	// Check Redis
	if err := h.redis.Ping(ctx).Err(); err == nil {
		checks["redis"] = "healthy"
	} else {
		checks["redis"] = "unhealthy"
	}

	// Determine overall status
	overallStatus := "healthy"
	for _, status := range checks {
		if status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
		"version":   "1.0.0",
	})
}

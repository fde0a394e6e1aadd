package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthChecker reports the liveness of the service and its dependencies
type HealthChecker struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	startTime   time.Time
}

func NewHealthChecker(mongoClient *mongo.Client, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		mongoClient: mongoClient,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
}

type healthStatus struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler serves the health endpoint. Degraded dependencies turn the overall
// status to unhealthy with a 503.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := healthStatus{
			Status:    "healthy",
			Uptime:    time.Since(h.startTime).String(),
			Checks:    make(map[string]string),
			Timestamp: time.Now(),
		}

		if err := h.mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			status.Status = "unhealthy"
			status.Checks["mongodb"] = err.Error()
		} else {
			status.Checks["mongodb"] = "ok"
		}

		if h.redisClient != nil {
			if err := h.redisClient.Ping(ctx).Err(); err != nil {
				status.Status = "unhealthy"
				status.Checks["redis"] = err.Error()
			} else {
				status.Checks["redis"] = "ok"
			}
		}

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

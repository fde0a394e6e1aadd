package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

const callerContextKey = "caller"

// Identity headers. Authentication happens upstream; this service only
// consumes the already-resolved identity and role.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// CallerMiddleware extracts the caller identity from the request headers.
// Every business route requires one; there is no anonymous access.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := primitive.ObjectIDFromHex(c.GetHeader(headerUserID))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Code:    string(apierrors.CodeValidation),
				Message: "encabezado X-User-Id requerido o invalido",
			})
			return
		}

		rol := c.GetHeader(headerUserRole)
		if rol != models.RolAdmin && rol != models.RolCliente {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Code:    string(apierrors.CodeValidation),
				Message: "encabezado X-User-Role debe ser admin o cliente",
			})
			return
		}

		c.Set(callerContextKey, models.Caller{UserID: userID, Rol: rol})
		c.Next()
	}
}

// LoggingMiddleware logs every request with latency and status
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})

		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Info("Request handled")
		}
	}
}

// MetricsMiddleware feeds the HTTP metrics
func MetricsMiddleware(metrics monitoring.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

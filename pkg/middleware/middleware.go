package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/shipment-pipeline/pkg/errors"
)

// Config holds middleware configuration
type Config struct {
	Logger         *slog.Logger
	ServiceName    string
	TrustedProxies []string
}

// DefaultConfig returns a default middleware configuration
func DefaultConfig(serviceName string, logger *slog.Logger) *Config {
	return &Config{Logger: logger, ServiceName: serviceName}
}

// Setup installs the validator and the standard chain: panic recovery,
// request and correlation IDs, access logging and the JSON body guard
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	router.Use(
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		AccessLog(config.Logger),
		JSONBody(),
	)
}

// JSONBody rejects write requests whose body is not JSON
func JSONBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > 0 && c.ContentType() != gin.MIMEJSON {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}

// HealthCheck creates a liveness handler
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}

// ReadinessCheck creates a readiness handler backed by checkFn, which gets
// two seconds to answer
func ReadinessCheck(serviceName string, checkFn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := checkFn(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "service": serviceName, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": serviceName})
	}
}

// NoRoute handles 404s in the standard error format
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		appErr := errors.NewAppError("ROUTE_NOT_FOUND", "The requested resource was not found", http.StatusNotFound)
		c.JSON(appErr.HTTPStatus, newErrorResponse(c, appErr))
	}
}

// NoMethod handles 405s in the standard error format
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		appErr := errors.NewAppError("METHOD_NOT_ALLOWED", "The request method is not supported for this resource", http.StatusMethodNotAllowed)
		c.JSON(appErr.HTTPStatus, newErrorResponse(c, appErr))
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"optibooking/pkg/logger"
)

// requestLogger logs one line per request and the errors handlers attached to it
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/metrics" || path == "/live" || path == "/ready" {
			return
		}

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			log.Errorw("Request failed", append(fields, "error", c.Errors.String())...)
			return
		}
		log.Debugw("Request served", fields...)
	}
}

// rateLimit rejects requests above the configured rate with 429
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
				Success: false,
				Error:   &apiErr{Code: "rate_limited", Message: "too many uploads, retry later"},
			})
			return
		}
		c.Next()
	}
}

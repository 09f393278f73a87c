package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		reqLogger := logging.WithContext(c.Request.Context(), logger)
		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "api.request"),
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			reqLogger.Warn("request failed", logging.Args(attrs...)...)
			return
		}
		reqLogger.Debug("request served", logging.Args(attrs...)...)
	}
}

// bearerAuth is a no-op when token is empty.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "bearer token required"))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(value)), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "invalid token"))
			c.Abort()
			return
		}
		c.Next()
	}
}

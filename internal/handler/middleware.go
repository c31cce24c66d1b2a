package handler

import (
	"strconv"
	"time"

	"liverymarket/internal/config"
	"liverymarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	adminIDKey      = "admin_id"
	adminIDHeader   = "X-Admin-ID"
)

// RequestIDMiddleware keeps the caller's X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
		}).Info("http request")
	}
}

// RecoveryMiddleware turns a panic into a 500 envelope.
func RecoveryMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logrus.Fields{
					"request_id": c.GetString(requestIDKey),
					"panic":      err,
				}).Error("handler panic")
				c.AbortWithStatusJSON(500, response.Response{
					Code:    response.CodeServerError,
					Message: "internal error",
				})
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-Admin-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AdminMiddleware admits only chat ids listed in admin.ids, passed in the
// X-Admin-ID header by the chat front end.
func AdminMiddleware(admins *config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(adminIDHeader)
		if raw == "" {
			response.Abort(c, response.CodeUnauthorized, "admin id required")
			return
		}
		adminID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !admins.IsAdmin(adminID) {
			response.Abort(c, response.CodeForbidden, "not an admin")
			return
		}
		c.Set(adminIDKey, adminID)
		c.Next()
	}
}

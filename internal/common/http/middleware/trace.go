package middleware

import (
	"context"
	"strings"

	"examgrader/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"
	UserIDHeader    = "X-User-Id"
)

// TraceContextConfig controls which inbound identifiers are honored.
type TraceContextConfig struct {
	// AllowUserIDHeader copies X-User-Id into the request context when an upstream gateway sets it.
	AllowUserIDHeader bool
}

// TraceContextMiddleware ensures trace and request ids are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		bind(c, TraceIDHeader, contextkey.TraceID, orNewID(c.GetHeader(TraceIDHeader)))
		bind(c, RequestIDHeader, contextkey.RequestID, orNewID(c.GetHeader(RequestIDHeader)))

		if cfg.AllowUserIDHeader {
			if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
				bind(c, UserIDHeader, contextkey.UserID, userID)
			}
		}

		c.Next()
	}
}

// bind stores value in the gin keys, the request context and the response header.
func bind(c *gin.Context, header string, key contextkey.Key, value string) {
	c.Set(key.String(), value)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, value))
	c.Writer.Header().Set(header, value)
}

func orNewID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return uuid.NewString()
	}
	return v
}

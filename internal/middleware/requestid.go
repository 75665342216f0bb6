package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates the request identifier over HTTP.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID string.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with a unique identifier. An
// inbound X-Request-ID (from a load balancer or the caller) is trusted and
// reused; otherwise a fresh UUID v4 is generated. The ID is stored in the
// gin.Context under RequestIDKey and echoed on the response so callers can
// quote it when reporting problems. Install it before the logger so every
// log line carries the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"newsletter-go/internal/logging"
)

const RequestIDHeader = "X-Request-Id"

// RequestID assigns a fresh correlation id to every request. The id lives in
// the request context, so it disappears with the request on every exit path.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

package middleware

import (
	"github.com/ErlanBelekov/token-ledger/internal/requestid"
	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// RequestID keeps a well-formed incoming X-Request-ID, otherwise assigns a
// UUID, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Sanitize(c.GetHeader(RequestIDHeader))

		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guttosm/stockpulse/internal/logger"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// RequestID tags every request with an identifier and a request-scoped logger.
//
// Behavior:
//   - Reuses an incoming X-Request-ID when it is a valid UUID, otherwise generates a v4.
//   - Stores it in the Gin context under "request_id" and echoes it as X-Request-ID.
//   - Attaches logger.L() with a request_id field to the request context, so
//     zerolog.Ctx(ctx) in services and handlers logs with the same id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)

		l := logger.L().With().Str(RequestIDKey, id).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/domain/dto"
)

// ErrorHandler turns errors attached with c.Error into a JSON ErrorResponse.
//
// Behavior:
//   - Runs after the handler chain.
//   - Does nothing if no error was attached or a response was already written.
//   - Otherwise logs the last error and responds 500 without the error text.
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 {
		return
	}
	err := c.Errors.Last().Err
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")

	if c.Writer.Written() {
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse("Internal server error", nil))
}

// AbortWithError aborts the chain with status and a standardized error body.
// err is optional. For 5xx it is attached to the context for ErrorHandler to log
// and left out of the body; for 4xx it becomes error_details.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		if err != nil {
			_ = c.Error(err)
		}
		err = nil
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message, err))
}

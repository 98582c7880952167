package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/guttosm/stockpulse/internal/middleware"
)

// requestTimeout bounds every API request, including its database reads.
const requestTimeout = 10 * time.Second

// NewRouter builds the read API engine around handler.
//
// Responsibilities:
//   - Registers global middlewares (RequestID, Logger, Recovery, CORS, ErrorHandler, RateLimiter).
//   - Bounds each request context by requestTimeout.
//   - Mounts Swagger docs (/swagger/*any).
//   - Configures API v1 routes (/api/v1/symbols, /api/v1/prices).
//
// Health and readiness endpoints are registered in app.InitializeApp().
func NewRouter(handler *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RecoveryMiddleware(),
		middleware.CORS(allowedOrigins),
		middleware.ErrorHandler,
		middleware.RateLimiter(),
		withTimeout(requestTimeout),
	)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/symbols", handler.ListSymbols)
		v1.GET("/prices", handler.GetPrices)
	}

	return router
}

func withTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

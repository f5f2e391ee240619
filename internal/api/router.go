package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/api/handlers"
	"github.com/modomart/checkoutbff/internal/api/middleware"
	"github.com/modomart/checkoutbff/internal/checkout"
	"github.com/modomart/checkoutbff/internal/config"
	"github.com/modomart/checkoutbff/internal/payment"
	"github.com/modomart/checkoutbff/internal/repository"
)

// NewRouter creates and configures the Gin router
func NewRouter(
	cfg *config.Config,
	repos *repository.Repositories,
	svc *checkout.Service,
	gateway payment.Gateway,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Gateway return lands from the user's browser, outside app auth
		v1.GET("/payment/vnpay/return", handlers.HandleVNPayReturn(gateway, logger))

		appRoutes := v1.Group("")
		appRoutes.Use(middleware.AuthMiddleware(repos, logger))
		{
			reads := appRoutes.Group("")
			reads.Use(middleware.RateLimitMiddleware(false))
			{
				reads.GET("/checkout/sessions/:id", handlers.HandleGetSession(svc, logger))
				reads.PATCH("/checkout/sessions/:id/selection", handlers.HandleUpdateSelection(svc, logger))
				reads.GET("/shipping/profiles", handlers.HandleListShippingProfiles(cfg, logger))
			}

			writes := appRoutes.Group("")
			writes.Use(middleware.RateLimitMiddleware(true))
			writes.Use(middleware.IdempotencyMiddleware())
			{
				writes.POST("/checkout/sessions", handlers.HandleCreateSession(cfg, svc, logger))
				writes.POST("/checkout/sessions/:id/submit", handlers.HandleSubmit(svc, logger))
			}
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}

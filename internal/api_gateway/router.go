package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linebroker/internal/api_gateway/handler"
	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/idempotency"
)

type handlers struct {
	transactions *handler.TransactionHandler
	rentals      *handler.RentalHandler
	wallet       *handler.WalletHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	cfg *config.Config,
	idempotencyStore idempotency.Store,
	h handlers,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	auth := middleware.Auth([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	idempotent := middleware.Idempotency(logger, idempotencyStore, cfg.Idempotency.TTL, cfg.Idempotency.InProgressTTL)

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Gateway notifications are authenticated by their integrity token
		v1.POST("/webhooks/payments", h.wallet.Webhook)

		authed := v1.Group("", auth)

		// Verification operations
		transactions := authed.Group("/transactions")
		{
			transactions.POST("", idempotent, h.transactions.Create)
			transactions.GET("/:id", h.transactions.GetByID)
			transactions.POST("/:id/cancel", idempotent, h.transactions.Cancel)
			transactions.POST("/:id/retry", idempotent, h.transactions.Retry)
		}

		// Rental operations
		rentals := authed.Group("/rentals")
		{
			rentals.POST("", idempotent, h.rentals.Create)
			rentals.POST("/:id/extend", idempotent, h.rentals.Extend)
			rentals.POST("/:id/release", idempotent, h.rentals.Release)
		}

		// Wallet operations
		wallet := authed.Group("/wallet")
		{
			wallet.GET("/balance", h.wallet.Balance)
			wallet.GET("/entries", h.wallet.Entries)
			wallet.POST("/topups", idempotent, h.wallet.InitTopUp)
			wallet.GET("/topups/:ref", h.wallet.GetTopUp)
			wallet.POST("/topups/:ref/verify", h.wallet.VerifyTopUp)
		}

		authed.GET("/pricing/quote", h.transactions.Quote)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

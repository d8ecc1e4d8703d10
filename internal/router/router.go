package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vpnshop/internal/handler/api"
	"vpnshop/internal/middleware"
)

// Handlers bundles the HTTP handlers mounted by Setup.
type Handlers struct {
	Payments *api.PaymentHandler
	Plans    *api.PlanHandler
	// Webhook is the bot's update handler; nil in polling mode.
	Webhook http.Handler
}

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	h Handlers,
	logger *zap.Logger,
	apiKey string,
	updates middleware.UpdateLog,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	// Admin API
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(apiKey))
	apiGroup.GET("/payments", h.Payments.List)
	apiGroup.GET("/payments/sessions", h.Payments.Sessions)
	apiGroup.GET("/payments/:id", h.Payments.Get)
	apiGroup.POST("/payments/:id/cancel", h.Payments.Cancel)
	apiGroup.GET("/plans", h.Plans.List)

	// Telegram webhook (protected by IP check + deduplication)
	if h.Webhook != nil {
		botWebhookGroup := e.Group("/bot")
		botWebhookGroup.Use(middleware.TelegramIPCheck())
		botWebhookGroup.Use(middleware.DropRepeatedUpdates(updates, logger))
		botWebhookGroup.POST("/webhook", echo.WrapHandler(h.Webhook))
	} else {
		logger.Info("Telegram webhook routes disabled (bot update mode is polling)")
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

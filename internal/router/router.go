package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"tunnelbot/internal/config"
	"tunnelbot/internal/cron"
	"tunnelbot/internal/handler/api"
	"tunnelbot/internal/middleware"
	"tunnelbot/internal/provision"
	"tunnelbot/internal/repository"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	cfg *config.Store,
	svc *provision.Service,
	servers *repository.ServerRepository,
	janitor *cron.Janitor,
	deduper middleware.RequestDeduper,
	logger *zap.Logger,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	accountHandler := api.NewAccountHandler(svc, logger)
	serverHandler := api.NewServerHandler(servers, logger)
	adminHandler := api.NewAdminHandler(janitor, cfg, logger)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(middleware.APIAuth(cfg.Snapshot().API.Key))

	// Provisioning traffic goes through the idempotency guard so a retried
	// request cannot provision twice on the remote panel.
	provisionGroup := apiGroup.Group("")
	provisionGroup.Use(middleware.IdempotencyGuard(deduper))
	provisionGroup.POST("/provision", accountHandler.Provision)
	provisionGroup.POST("/renew", accountHandler.Renew)
	provisionGroup.POST("/delete", accountHandler.Delete)

	apiGroup.GET("/accounts/:userID", accountHandler.List)
	apiGroup.GET("/servers", serverHandler.List)
	apiGroup.POST("/servers", serverHandler.Create)
	apiGroup.POST("/admin/purge", adminHandler.Purge)
	apiGroup.POST("/admin/backfill", adminHandler.Backfill)
	apiGroup.POST("/admin/config/reload", adminHandler.ReloadConfig)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

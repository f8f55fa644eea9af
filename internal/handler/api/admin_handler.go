package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tunnelbot/internal/config"
	"tunnelbot/internal/cron"
)

// AdminHandler exposes the janitor sweeps and config reload.
type AdminHandler struct {
	janitor *cron.Janitor
	cfg     *config.Store
	logger  *zap.Logger
}

func NewAdminHandler(janitor *cron.Janitor, cfg *config.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{janitor: janitor, cfg: cfg, logger: logger}
}

// Purge handles POST /api/v1/admin/purge — runs the expiry purge now.
func (h *AdminHandler) Purge(c echo.Context) error {
	removed, err := h.janitor.PurgeExpired()
	if err != nil {
		h.logger.Error("manual purge failed", zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "purged", map[string]int64{"removed": removed})
}

// Backfill handles POST /api/v1/admin/backfill — runs the domain back-fill
// migration now.
func (h *AdminHandler) Backfill(c echo.Context) error {
	stats, err := h.janitor.BackfillServerLinks()
	if err != nil {
		h.logger.Error("manual back-fill failed", zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "backfilled", stats)
}

// ReloadConfig handles POST /api/v1/admin/config/reload.
func (h *AdminHandler) ReloadConfig(c echo.Context) error {
	if _, err := h.cfg.Reload(); err != nil {
		h.logger.Error("config reload failed", zap.Error(err))
		return failureResponse(c, err)
	}
	h.logger.Info("config reloaded")
	return successResponse(c, "reloaded", nil)
}

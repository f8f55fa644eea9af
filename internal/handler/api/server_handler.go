package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tunnelbot/internal/models"
	"tunnelbot/internal/repository"
)

// ServerHandler exposes the server directory.
type ServerHandler struct {
	servers *repository.ServerRepository
	logger  *zap.Logger
}

func NewServerHandler(servers *repository.ServerRepository, logger *zap.Logger) *ServerHandler {
	return &ServerHandler{servers: servers, logger: logger}
}

// List handles GET /api/v1/servers.
func (h *ServerHandler) List(c echo.Context) error {
	servers, err := h.servers.FindAll()
	if err != nil {
		return failureResponse(c, err)
	}
	return successResponse(c, "ok", servers)
}

// Create handles POST /api/v1/servers.
func (h *ServerHandler) Create(c echo.Context) error {
	var srv models.Server
	if err := c.Bind(&srv); err != nil {
		return errorResponse(c, 400, "malformed request body")
	}
	if srv.Domain == "" {
		return errorResponse(c, 400, "domain is required")
	}
	if err := h.servers.Create(&srv); err != nil {
		h.logger.Error("server create failed", zap.String("domain", srv.Domain), zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "created", srv)
}
